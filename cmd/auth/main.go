// Package main provides the YouTube authentication tool. It runs the OAuth
// consent flow once and prints the refresh token the server uses.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/osa030/karaoke-hub/internal/infra/logger"
	"github.com/osa030/karaoke-hub/internal/infra/youtube"
)

var (
	app          = kingpin.New("karaoke-auth", "YouTube authentication tool for the karaoke hub")
	clientID     = app.Flag("client-id", "Google OAuth Client ID").Envar("YOUTUBE_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Google OAuth Client Secret").Envar("YOUTUBE_CLIENT_SECRET").Required().String()
	port         = app.Flag("port", "Callback server port").Default("8888").Int()
)

type callback struct {
	token *oauth2.Token
	err   error
}

func main() {
	_ = godotenv.Load()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if _, err := logger.Init(logger.Config{Output: "stderr", Level: "info"}); err != nil {
		panic(err)
	}

	conf := &oauth2.Config{
		ClientID:     *clientID,
		ClientSecret: *clientSecret,
		Endpoint:     youtube.GoogleEndpoint,
		Scopes:       []string{youtube.ReadOnlyScope},
		RedirectURL:  fmt.Sprintf("http://127.0.0.1:%d/callback", *port),
	}
	state := randomState()
	ch := make(chan callback, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if st := r.FormValue("state"); st != state {
			http.Error(w, "State mismatch", http.StatusForbidden)
			zlog.Warn().Msgf("state mismatch: got=%s", st)
			return
		}
		token, err := conf.Exchange(r.Context(), r.FormValue("code"))
		if err != nil {
			http.Error(w, "Failed to get token", http.StatusForbidden)
			deliver(ch, callback{err: err})
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this window and return to the terminal.")
		deliver(ch, callback{token: token})
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", *port), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Msgf("Failed to start server: %v", err)
		}
	}()

	// Offline access with forced consent so Google returns a refresh token.
	url := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Println("Please visit the following URL to authorize the karaoke hub:")
	fmt.Println("")
	fmt.Println(url)
	fmt.Println("")
	fmt.Println("Waiting for authorization...")

	result := <-ch

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		zlog.Warn().Msgf("Failed to shutdown server: %v", err)
	}

	if result.err != nil {
		zlog.Fatal().Msgf("Failed to exchange code: %v", result.err)
	}
	if result.token.RefreshToken == "" {
		zlog.Fatal().Msg("No refresh token returned; revoke the app's access and try again")
	}

	fmt.Println("")
	fmt.Println("=== Authorization Successful ===")
	fmt.Println("")
	fmt.Println("Add this to config/server.yaml:")
	fmt.Println("")
	fmt.Println("youtube:")
	fmt.Printf("  client_id: \"%s\"\n", *clientID)
	fmt.Printf("  refresh_token: \"%s\"\n", result.token.RefreshToken)
	fmt.Println("")
	fmt.Println("Or set as environment variable:")
	fmt.Printf("export YOUTUBE_REFRESH_TOKEN=\"%s\"\n", result.token.RefreshToken)
}

// deliver keeps only the first callback; later ones are dropped.
func deliver(ch chan<- callback, c callback) {
	select {
	case ch <- c:
	default:
	}
}

func randomState() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
