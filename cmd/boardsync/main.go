package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"whiteboard/internal/boardsync"
	"whiteboard/internal/client"
	"whiteboard/internal/filecanvas"
	"whiteboard/internal/localstore"
)

const BoardSyncVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Board sync.

Mirrors a whiteboard to a local scene file. Edits to the file are saved to the
board and broadcast to collaborators; their edits are merged back into the file.

The default api url is http://localhost:8080. The token may also be given in
the BOARDSYNC_TOKEN environment variable.

Usage:
    boardsync sync [--api_url=<api_url>] [--token=<token>]
        --slug=<slug>
        --scene=<scene_file>
        [--queue_db=<queue_db>]
        [--debounce=<debounce>]
        [--start_fresh]
        [--v=<level>]
    boardsync login [--api_url=<api_url>] --email=<email>
    boardsync verify [--api_url=<api_url>] <login_token>
    boardsync -h | --help
    boardsync --version

Options:
    -h --help                Show this screen.
    --version                Show version.
    --api_url=<api_url>      Backend url [default: http://localhost:8080].
    --token=<token>          Session JWT.
    --slug=<slug>            Board slug.
    --scene=<scene_file>     Scene file to mirror the board into.
    --queue_db=<queue_db>    Local database for unsent edits [default: boardsync.db].
    --debounce=<debounce>    Quiet period before an edit is saved [default: 5s].
    --start_fresh            Replace a corrupted stored scene with an empty one.
    --email=<email>          Address to send the login link to.
    --v=<level>              Log verbosity [default: 0].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], BoardSyncVersion)
	if err != nil {
		panic(err)
	}

	_ = flag.Set("logtostderr", "true")
	if level, _ := opts.String("--v"); level != "" {
		_ = flag.Set("v", level)
	}
	defer glog.Flush()

	if sync_, _ := opts.Bool("sync"); sync_ {
		err = syncBoard(opts)
	} else if login_, _ := opts.Bool("login"); login_ {
		err = login(opts)
	} else if verify_, _ := opts.Bool("verify"); verify_ {
		err = verify(opts)
	}
	if err != nil {
		Err.Printf("%s", err)
		glog.Flush()
		os.Exit(1)
	}
}

func login(opts docopt.Opts) error {
	apiURL, _ := opts.String("--api_url")
	email, _ := opts.String("--email")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.NewAPI(apiURL, "").RequestLoginLink(ctx, email); err != nil {
		return err
	}
	Out.Printf("A login link has been sent to %s", email)
	return nil
}

func verify(opts docopt.Opts) error {
	apiURL, _ := opts.String("--api_url")
	loginToken, _ := opts.String("<login_token>")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	session, err := client.NewAPI(apiURL, "").Verify(ctx, loginToken)
	if err != nil {
		return err
	}
	Out.Printf("Signed in as %s (%s)", session.DisplayName, session.UserID)
	Out.Printf("%s", session.Token)
	return nil
}

func syncBoard(opts docopt.Opts) error {
	apiURL, _ := opts.String("--api_url")
	token, _ := opts.String("--token")
	if token == "" {
		token = os.Getenv("BOARDSYNC_TOKEN")
	}
	slug, _ := opts.String("--slug")
	scenePath, _ := opts.String("--scene")
	queueDB, _ := opts.String("--queue_db")
	debounceStr, _ := opts.String("--debounce")
	startFresh, _ := opts.Bool("--start_fresh")

	debounce, err := time.ParseDuration(debounceStr)
	if err != nil {
		return fmt.Errorf("invalid --debounce: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.NewAPI(apiURL, token)
	var identity boardsync.Identity
	if token != "" {
		identity, err = api.Me(ctx)
		if err != nil {
			return err
		}
	}

	local, err := localstore.OpenSQLite(queueDB)
	if err != nil {
		return err
	}
	defer local.Close()

	canvas := filecanvas.New(scenePath)
	connectivity := boardsync.NewManualConnectivity(true)

	cfg := boardsync.DefaultConfig()
	cfg.DebounceWindow = debounce

	engine := boardsync.New(cfg, boardsync.Deps{
		Store:        api,
		Transport:    client.NewRealtime(apiURL, token, client.DefaultRealtimeSettings()),
		Canvas:       canvas,
		Local:        local,
		Connectivity: connectivity,
		Notifier:     boardsync.NotifierFunc(notify),
		Identity:     identity,
	})
	engine.OnStatus(followChannel(connectivity))
	engine.OnStatus(statusPrinter())
	engine.OnPresence(func(users []boardsync.Presence) {
		Out.Printf("%d online", len(users))
	})

	if err := engine.Mount(ctx, slug); err != nil {
		if errors.Is(err, boardsync.ErrUnauthorized) {
			return fmt.Errorf("not allowed to open %s: %w", slug, err)
		}
		return err
	}
	if startFresh && engine.Status().Corrupted {
		if err := engine.StartFresh(); err != nil {
			return err
		}
	}
	Out.Printf("Syncing %s <-> %s", slug, canvas.Path())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return canvas.Watch(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		engine.Unmount()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if n := engine.Status().Queued; n > 0 {
		Out.Printf("%d unsent edits kept in %s", n, queueDB)
	}
	return nil
}

// followChannel derives connectivity from the realtime channel: a live
// subscription means online, a dropped one offline.
func followChannel(c *boardsync.ManualConnectivity) func(boardsync.Status) {
	return func(st boardsync.Status) {
		switch st.Channel {
		case boardsync.ChannelSubscribed:
			c.Set(true)
		case boardsync.ChannelError, boardsync.ChannelTimedOut, boardsync.ChannelClosed:
			c.Set(false)
		}
	}
}

func statusPrinter() func(boardsync.Status) {
	var mu sync.Mutex
	var last boardsync.Status
	return func(st boardsync.Status) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case st.Saving && !last.Saving:
			Out.Printf("Saving...")
		case !st.LastSavedAt.Equal(last.LastSavedAt):
			Out.Printf("Saved at %s", st.LastSavedAt.Format(time.Kitchen))
		case st.Offline && !last.Offline:
			Out.Printf("Offline, edits are queued")
		case !st.Offline && last.Offline:
			Out.Printf("Back online")
		}
		last = st
	}
}

func notify(n boardsync.Notice) {
	if n.Err != nil {
		Err.Printf("%s: %s (%s)", n.Kind, n.Message, n.Err)
		return
	}
	Err.Printf("%s: %s", n.Kind, n.Message)
	if n.Kind == boardsync.NoticeCorrupted {
		Err.Printf("Run again with --start_fresh to replace the stored scene")
	}
}
