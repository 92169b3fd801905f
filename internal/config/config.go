// Package config reads the environment for the relay and the client binaries.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Server struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	JWTSecret      []byte
	AllowedOrigins []string
	SocketPath     string
	ReadLimit      int64
	SendBuffer     int
	RedisRetryMax  time.Duration
}

// LoadServer reads the relay configuration. DATABASE_URL is required.
func LoadServer() (Server, error) {
	cfg := Server{
		Port:           getenv("PORT", "3000"),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		RedisURL:       getenv("REDIS_URL", ""),
		JWTSecret:      []byte(getenv("JWT_SECRET", "")),
		AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "")),
		SocketPath:     getenv("SOCKET_PATH", "/socket/sessions"),
		ReadLimit:      int64(getenvInt("WS_READ_LIMIT", 1<<20)),
		SendBuffer:     getenvInt("WS_SEND_BUFFER", 256),
		RedisRetryMax:  getenvDuration("REDIS_RETRY_MAX", 5*time.Second),
	}
	if cfg.DatabaseURL == "" {
		return Server{}, errors.New("config: DATABASE_URL is required")
	}
	if !strings.HasPrefix(cfg.SocketPath, "/") {
		cfg.SocketPath = "/" + cfg.SocketPath
	}
	return cfg, nil
}

type Client struct {
	SessionURL    string
	OrgID         string
	SessionID     string
	SessionSecret string
	AccessToken   string
	JWTSecret     []byte
	UserID        string
	LocalDBDir    string
	ScheduleFile  string
	ReconnectMin  time.Duration
	ReconnectMax  time.Duration
}

// LoadClient reads the controller/receiver configuration.
func LoadClient() (Client, error) {
	cfg := Client{
		SessionURL:    getenv("SESSION_URL", "ws://localhost:3000/socket/sessions"),
		OrgID:         getenv("ORG_ID", ""),
		SessionID:     getenv("SESSION_ID", ""),
		SessionSecret: getenv("SESSION_SECRET", ""),
		AccessToken:   getenv("ACCESS_TOKEN", ""),
		JWTSecret:     []byte(getenv("JWT_SECRET", "")),
		UserID:        getenv("USER_ID", ""),
		LocalDBDir:    getenv("LOCAL_DB_DIR", "."),
		ScheduleFile:  getenv("SCHEDULE_FILE", ""),
		ReconnectMin:  getenvDuration("RECONNECT_MIN", 500*time.Millisecond),
		ReconnectMax:  getenvDuration("RECONNECT_MAX", 10*time.Second),
	}
	if cfg.OrgID == "" || cfg.SessionID == "" {
		return Client{}, errors.New("config: ORG_ID and SESSION_ID are required")
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = cfg.ReconnectMin
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	raw := getenv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getenvDuration(key string, def time.Duration) time.Duration {
	raw := getenv(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
