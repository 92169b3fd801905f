// Package localstore keeps the controller's schedule and preferences in a
// SQLite file so a restart resumes where the operator left off.
package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/mghextreme/blu-presenter-sub000/internal/content"
	"github.com/mghextreme/blu-presenter-sub000/internal/presenter"
	"github.com/mghextreme/blu-presenter-sub000/internal/sanitize"

	_ "modernc.org/sqlite"
)

const (
	KeySchedule = "controllerSchedule"
	KeyConfig   = "controllerConfig"
)

// Store is a small key-value table. It implements presenter.StateProvider
// and presenter.Persister.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

var (
	_ presenter.StateProvider = (*Store)(nil)
	_ presenter.Persister     = (*Store)(nil)
)

// Open opens or creates dir/controller.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	path := filepath.Join(dir, "controller.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Path() string { return s.path }

// Get returns the raw value of key, nil when absent.
func (s *Store) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var v string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(v), nil
}

// Put stores v as JSON under key.
func (s *Store) Put(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, string(b))
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Store) SaveSchedule(items []content.ScheduleItem) error {
	if items == nil {
		items = []content.ScheduleItem{}
	}
	return s.Put(KeySchedule, items)
}

func (s *Store) SaveConfig(cfg presenter.Config) error {
	return s.Put(KeyConfig, cfg)
}

// InitialSchedule returns the stored schedule. Missing or damaged data
// yields an empty schedule.
func (s *Store) InitialSchedule() []content.ScheduleItem {
	b, err := s.Get(KeySchedule)
	if err != nil {
		log.Printf("localstore: %v", err)
		return []content.ScheduleItem{}
	}
	return sanitize.Schedule(json.RawMessage(b))
}

// InitialConfig returns the stored preferences, or the defaults.
func (s *Store) InitialConfig() presenter.Config {
	var cfg presenter.Config
	b, err := s.Get(KeyConfig)
	if err != nil {
		log.Printf("localstore: %v", err)
		return cfg
	}
	if b == nil {
		return cfg
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		log.Printf("localstore: decode %s: %v", KeyConfig, err)
		return presenter.Config{}
	}
	return cfg
}
