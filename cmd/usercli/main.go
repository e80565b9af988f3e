// Package main provides the guest CLI entry point for testing.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/osa030/karaoke-hub/internal/api/karaokev1"
	"github.com/osa030/karaoke-hub/internal/app/dispatch"
	"github.com/osa030/karaoke-hub/internal/client"
	"github.com/osa030/karaoke-hub/internal/domain/event"
	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

var (
	app       = kingpin.New("karaoke-usercli", "karaoke hub guest client for testing")
	server    = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	sessionID = app.Flag("session", "Session ID").Short('s').Required().String()

	snapshotCmd = app.Command("snapshot", "Print the session and its queue")

	addCmd   = app.Command("add", "Add a video to the queue")
	addVideo = addCmd.Arg("video", "YouTube URL or video ID").Required().String()
	addName  = addCmd.Flag("name", "Your name").Default(karaoke.DefaultAddedBy).String()

	removeCmd  = app.Command("remove", "Remove an item from the queue")
	removeItem = removeCmd.Arg("item-id", "Queue item ID").Required().String()

	playCmd  = app.Command("play", "Make a queued item the current song")
	playItem = playCmd.Arg("item-id", "Queue item ID").Required().String()

	clearCmd = app.Command("clear", "Clear the current song")

	followCmd = app.Command("follow", "Follow the session and print every change")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case snapshotCmd.FullCommand():
		err = snapshot(ctx)
	case addCmd.FullCommand():
		err = withSession(ctx, func(s *client.Session) error { return add(ctx, s) })
	case removeCmd.FullCommand():
		err = withSession(ctx, func(s *client.Session) error {
			return s.Replica().Local(event.RemoveFromQueue{ItemID: *removeItem})
		})
	case playCmd.FullCommand():
		err = withSession(ctx, func(s *client.Session) error { return play(s, *playItem) })
	case clearCmd.FullCommand():
		err = withSession(ctx, func(s *client.Session) error {
			return s.Replica().Local(event.UpdateCurrentSong{})
		})
	case followCmd.FullCommand():
		err = follow(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func snapshot(ctx context.Context) error {
	rpc := karaokev1.NewSessionServiceClient(http.DefaultClient, *server)
	resp, err := rpc.GetSnapshot(ctx, connect.NewRequest(&karaokev1.GetSnapshotRequest{SessionID: *sessionID}))
	if err != nil {
		return err
	}
	fmt.Printf("Session %s (active=%t)\n", resp.Msg.Session.ID, resp.Msg.Session.Active)
	printState(dispatch.State{CurrentSong: resp.Msg.Session.CurrentSong, Queue: resp.Msg.Queue})
	return nil
}

// withSession attaches, runs fn and gives the hub a moment to echo the event back.
func withSession(ctx context.Context, fn func(*client.Session) error) error {
	s := client.New(*sessionID, client.Options{
		BaseURL: *server,
		OnError: func(r event.ErrorReply) { fmt.Printf("Rejected: %s (%s)\n", r.Message, r.Code) },
	})
	if err := s.Attach(ctx); err != nil {
		return err
	}
	defer s.Close()

	runCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(runCtx)
	}()

	if err := fn(s); err != nil {
		return err
	}
	<-done
	printState(s.Replica().State())
	return nil
}

func add(ctx context.Context, s *client.Session) error {
	resp, err := s.Enqueue(ctx, *addVideo, *addName)
	if err != nil {
		return err
	}
	if !resp.Accepted {
		return errors.Newf("%s (%s)", resp.Message, resp.Code)
	}
	fmt.Printf("Queued: %s [%s]\n", resp.Item.Title, resp.Item.ID)
	return nil
}

func play(s *client.Session, itemID string) error {
	st := s.Replica().State()
	i := karaoke.IndexOf(st.Queue, itemID)
	if i < 0 {
		return errors.Newf("item not in queue: %s", itemID)
	}
	item := st.Queue[i]
	return s.Replica().Local(event.UpdateCurrentSong{Item: &item})
}

func follow(ctx context.Context) error {
	s := client.New(*sessionID, client.Options{BaseURL: *server})
	s.Replica().OnChange(func(st dispatch.State) {
		fmt.Printf("\n--- %s ---\n", time.Now().Format(time.TimeOnly))
		printState(st)
	})
	if err := s.Attach(ctx); err != nil {
		return err
	}
	defer s.Close()
	fmt.Printf("Following session %s (connection %s). Ctrl-C to stop.\n", *sessionID, s.ConnectionID())
	return s.Run(ctx)
}

func printState(st dispatch.State) {
	if st.CurrentSong != nil {
		fmt.Printf("Now singing: %s (added by %s)\n", st.CurrentSong.Title, st.CurrentSong.AddedBy)
	} else {
		fmt.Println("Nothing playing")
	}
	if len(st.Queue) == 0 {
		fmt.Println("Queue is empty")
		return
	}
	for i, item := range st.Queue {
		fmt.Printf("%2d. %s - %s [%s]\n", i+1, item.Title, item.AddedBy, item.ID)
	}
}
