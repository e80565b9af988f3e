// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/karaoke-hub/internal/api/connect"
	"github.com/osa030/karaoke-hub/internal/api/karaokev1"
)

var (
	app    = kingpin.New("karaoke-admincli", "karaoke hub admin client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()

	statusCmd = app.Command("status", "Show hub counters")

	createCmd = app.Command("create-session", "Create a new session").Alias("create")

	listCmd     = app.Command("list-connections", "List live connections").Alias("list")
	listSession = listCmd.Flag("session", "Only connections of this session").String()

	evictCmd  = app.Command("evict", "Drop a connection without announcing it")
	evictConn = evictCmd.Arg("connection-id", "Connection ID").Required().String()

	endCmd     = app.Command("end-session", "End a session").Alias("end")
	endSession = endCmd.Arg("session-id", "Session ID").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	admin := karaokev1.NewAdminServiceClient(http.DefaultClient, *server,
		connect.WithInterceptors(apiconnect.NewAdminTokenClientInterceptor(*token)))
	sessions := karaokev1.NewSessionServiceClient(http.DefaultClient, *server)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, admin)
	case createCmd.FullCommand():
		err = createSession(ctx, sessions)
	case listCmd.FullCommand():
		err = listConnections(ctx, admin, *listSession)
	case evictCmd.FullCommand():
		err = evict(ctx, admin, *evictConn)
	case endCmd.FullCommand():
		err = end(ctx, admin, *endSession)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func status(ctx context.Context, client karaokev1.AdminServiceClient) error {
	resp, err := client.GetStatus(ctx, connect.NewRequest(&karaokev1.GetStatusRequest{}))
	if err != nil {
		return err
	}
	s := resp.Msg
	fmt.Println("\n=== HUB STATUS ===")
	fmt.Printf("Connections: %d\n", s.Connections)
	fmt.Printf("Sessions:    %d\n", s.Sessions)
	fmt.Printf("Broadcasts:  %d\n", s.Broadcasts)
	fmt.Printf("Delivered:   %d\n", s.Delivered)
	fmt.Printf("Evicted:     %d\n", s.Evicted)
	fmt.Println()
	return nil
}

func createSession(ctx context.Context, client karaokev1.SessionServiceClient) error {
	resp, err := client.CreateSession(ctx, connect.NewRequest(&karaokev1.CreateSessionRequest{}))
	if err != nil {
		return err
	}
	fmt.Printf("Session created: %s\n", resp.Msg.Session.ID)
	fmt.Printf("Guests join with: %s/ws?sessionId=%s\n", *server, resp.Msg.Session.ID)
	return nil
}

func listConnections(ctx context.Context, client karaokev1.AdminServiceClient, sessionID string) error {
	resp, err := client.ListConnections(ctx, connect.NewRequest(&karaokev1.ListConnectionsRequest{SessionID: sessionID}))
	if err != nil {
		return err
	}
	if len(resp.Msg.Connections) == 0 {
		fmt.Println("No connections")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONNECTION\tSESSION\tJOINED")
	for _, c := range resp.Msg.Connections {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.ConnectionID, c.SessionID, c.JoinedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func evict(ctx context.Context, client karaokev1.AdminServiceClient, connID string) error {
	if _, err := client.EvictConnection(ctx, connect.NewRequest(&karaokev1.EvictConnectionRequest{ConnectionID: connID})); err != nil {
		return err
	}
	fmt.Println("Connection evicted")
	return nil
}

func end(ctx context.Context, client karaokev1.AdminServiceClient, sessionID string) error {
	if _, err := client.EndSession(ctx, connect.NewRequest(&karaokev1.EndSessionRequest{SessionID: sessionID})); err != nil {
		return err
	}
	fmt.Println("Session ended")
	return nil
}
