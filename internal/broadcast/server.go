// Package broadcast is the session relay: operators and receivers join a
// session room over a websocket and every state frame one member sends is
// forwarded to the others.
package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mghextreme/blu-presenter-sub000/internal/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// RedisChannel carries room frames between relay instances.
const RedisChannel = "blu-presenter:rooms"

type Options struct {
	SocketPath     string
	AllowedOrigins []string
	JWTSecret      []byte
	ReadLimit      int64
	SendBuffer     int
	// Redis enables cross-instance fan-out. Nil keeps delivery local.
	Redis *redis.Client
	// RedisRetryMax caps the delay between subscribe attempts.
	RedisRetryMax time.Duration
}

type Server struct {
	hub   *Hub
	store sessions.Store
	rdb   *redis.Client
	ctx   context.Context

	upgrader   websocket.Upgrader
	socketPath string
	jwtSecret  []byte
	readLimit  int64
	sendBuffer int
	retryMax   time.Duration

	subscribed    chan struct{}
	subscribeOnce sync.Once
}

func NewServer(ctx context.Context, hub *Hub, store sessions.Store, opts Options) *Server {
	s := &Server{
		hub:        hub,
		store:      store,
		rdb:        opts.Redis,
		ctx:        ctx,
		socketPath: opts.SocketPath,
		jwtSecret:  opts.JWTSecret,
		readLimit:  opts.ReadLimit,
		sendBuffer: opts.SendBuffer,
		retryMax:   opts.RedisRetryMax,
		subscribed: make(chan struct{}),
	}
	if s.socketPath == "" {
		s.socketPath = "/socket/sessions"
	}
	if s.readLimit <= 0 {
		s.readLimit = 1 << 20
	}
	if s.sendBuffer <= 0 {
		s.sendBuffer = 256
	}
	switch {
	case s.retryMax <= 0:
		s.retryMax = 5 * time.Second
	case s.retryMax < subscribeRetryMin:
		s.retryMax = subscribeRetryMin
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: originChecker(opts.AllowedOrigins)}
	return s
}

// originChecker allows every origin when allowed is empty.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get(s.socketPath, s.handleWS)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "presenter-relay",
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("broadcast: ws upgrade: %v", err)
		return
	}

	client := newClient(s, conn, uuid.NewString())
	if !s.hub.Register(client) {
		_ = conn.Close()
		return
	}
	client.emit(EventConnected, ConnectedData{Message: "connected", SocketID: client.id})

	go client.writePump()
	go client.readPump()
}

const subscribeRetryMin = 100 * time.Millisecond

// publish sends a room frame to every relay instance. Local members get it
// straight from the hub while this instance has no active subscription or
// Redis is unreachable.
func (s *Server) publish(msg roomMessage) {
	if s.rdb == nil {
		s.hub.deliver(msg)
		return
	}
	local := !s.isSubscribed()

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast: encode room message: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	if err := s.rdb.Publish(ctx, RedisChannel, string(data)).Err(); err != nil {
		log.Printf("broadcast: publish error: %v", err)
		local = true
	}
	if local {
		s.hub.deliver(msg)
	}
}

// Subscribed is closed once the Redis subscription is active.
func (s *Server) Subscribed() <-chan struct{} { return s.subscribed }

func (s *Server) isSubscribed() bool {
	select {
	case <-s.subscribed:
		return true
	default:
		return false
	}
}

// RunRedisSubscriber delivers room frames published by any instance to the
// local hub until ctx is done. The first subscription is retried until Redis
// answers; go-redis re-subscribes by itself after later connection losses.
func (s *Server) RunRedisSubscriber(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = subscribeRetryMin
	b.MaxInterval = s.retryMax
	b.MaxElapsedTime = 0

	var sub *redis.PubSub
	err := backoff.RetryNotify(func() error {
		ps := s.rdb.Subscribe(ctx, RedisChannel)
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return err
		}
		sub = ps
		return nil
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		log.Printf("broadcast: redis subscribe: %v (retry in %s)", err, wait)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer sub.Close()
	s.subscribeOnce.Do(func() { close(s.subscribed) })

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg roomMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				log.Printf("broadcast: bad room message: %v", err)
				continue
			}
			s.hub.deliver(msg)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
