package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mghextreme/blu-presenter-sub000/internal/auth"
	"github.com/mghextreme/blu-presenter-sub000/internal/broadcast"
	"github.com/mghextreme/blu-presenter-sub000/internal/config"
	"github.com/mghextreme/blu-presenter-sub000/internal/localstore"
	"github.com/mghextreme/blu-presenter-sub000/internal/presenter"
	"github.com/mghextreme/blu-presenter-sub000/internal/resync"
	"github.com/mghextreme/blu-presenter-sub000/internal/sanitize"
)

const issuedTokenTTL = 12 * time.Hour

func main() {
	log.SetPrefix("presenter-controller: ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatal(err)
	}

	store, err := localstore.Open(cfg.LocalDBDir)
	if err != nil {
		log.Fatalf("local store: %v", err)
	}
	defer store.Close()

	var mu sync.Mutex
	engine := presenter.New(presenter.WithInitialState(store), presenter.WithPersister(store))

	if cfg.ScheduleFile != "" {
		b, err := os.ReadFile(cfg.ScheduleFile)
		if err != nil {
			log.Fatalf("read schedule: %v", err)
		}
		items := sanitize.Schedule(json.RawMessage(b))
		engine.ReplaceSchedule(items)
		log.Printf("loaded %d items from %s", len(items), cfg.ScheduleFile)
	}

	token, err := auth.ClientToken(cfg.AccessToken, cfg.UserID, cfg.JWTSecret, issuedTokenTTL)
	if err != nil {
		log.Fatalf("token: %v", err)
	}

	client := resync.NewClient(resync.Options{
		URL:        cfg.SessionURL,
		MinBackoff: cfg.ReconnectMin,
		MaxBackoff: cfg.ReconnectMax,
	})
	resync.NewPublisher(client, engine, &mu)
	client.On(broadcast.EventError, func(raw json.RawMessage) {
		var e broadcast.ErrorData
		_ = json.Unmarshal(raw, &e)
		log.Printf("relay error %s: %s", e.Code, e.Message)
	})
	client.On(broadcast.EventJoinedSession, func(json.RawMessage) {
		log.Printf("joined session %s", cfg.SessionID)
	})

	client.Connect(ctx)
	defer client.Disconnect()
	if err := client.JoinSession(resync.JoinParams{
		OrgID:     cfg.OrgID,
		SessionID: cfg.SessionID,
		Secret:    cfg.SessionSecret,
		Token:     token,
	}); err != nil {
		log.Printf("join: %v", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	fmt.Println(usage)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			mu.Lock()
			err := execute(engine, line)
			out := status(engine)
			mu.Unlock()

			if errors.Is(err, errQuit) {
				return
			}
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			if line == "help" {
				fmt.Println(usage)
			}
			fmt.Println(out)
		}
	}
}
