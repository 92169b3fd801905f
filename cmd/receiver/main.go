package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mghextreme/blu-presenter-sub000/internal/auth"
	"github.com/mghextreme/blu-presenter-sub000/internal/broadcast"
	"github.com/mghextreme/blu-presenter-sub000/internal/config"
	"github.com/mghextreme/blu-presenter-sub000/internal/presenter"
	"github.com/mghextreme/blu-presenter-sub000/internal/resync"
)

func main() {
	log.SetPrefix("presenter-receiver: ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatal(err)
	}
	// Receivers usually join with the session secret only.
	token, err := auth.ClientToken(cfg.AccessToken, cfg.UserID, cfg.JWTSecret, 12*time.Hour)
	if err != nil {
		log.Fatalf("token: %v", err)
	}

	var mu sync.Mutex
	engine := presenter.New()

	client := resync.NewClient(resync.Options{
		URL:        cfg.SessionURL,
		MinBackoff: cfg.ReconnectMin,
		MaxBackoff: cfg.ReconnectMax,
	})
	resync.NewMirror(client, engine, &mu)

	// Listeners run inside engine operations, so mu is already held.
	last := ""
	engine.OnChange(func(presenter.ChangeKind) {
		out := render(engine.Snapshot())
		if out != last {
			last = out
			log.Printf("display:\n%s", out)
		}
	})
	client.On(broadcast.EventError, func(raw json.RawMessage) {
		var e broadcast.ErrorData
		_ = json.Unmarshal(raw, &e)
		log.Printf("relay error %s: %s", e.Code, e.Message)
	})

	client.Connect(ctx)
	if err := client.JoinSession(resync.JoinParams{
		OrgID:     cfg.OrgID,
		SessionID: cfg.SessionID,
		Secret:    cfg.SessionSecret,
		Token:     token,
	}); err != nil {
		log.Printf("join: %v", err)
	}

	<-ctx.Done()
	client.Disconnect()
}
