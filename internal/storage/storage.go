// /internal/storage/storage.go
package storage

import (
	"context"
	"fmt"

	"dm-companion/internal/companion"

	"github.com/rs/zerolog/log"
)

const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Options selects and configures a backend.
type Options struct {
	Backend         string
	DatabasePath    string
	StoragePath     string
	DefaultAffinity int
	MaxTurns        int
}

// backend is the raw persistence contract each driver implements.
type backend interface {
	get(ctx context.Context, userID string) (companion.State, bool, error)
	put(ctx context.Context, userID string, st companion.State) error
	ids(ctx context.Context) ([]string, error)
	maintain(ctx context.Context) error
	Close() error
}

// Storage implements companion.HistoryStore on top of a backend.
type Storage struct {
	b               backend
	name            string
	defaultAffinity int
	maxTurns        int
}

func New(opts Options) (*Storage, error) {
	var (
		b   backend
		err error
	)
	switch opts.Backend {
	case BackendSQLite, "":
		opts.Backend = BackendSQLite
		b, err = openSQLite(opts.DatabasePath)
	case BackendJSON:
		b, err = openJSON(opts.StoragePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", opts.Backend, err)
	}
	return &Storage{b: b, name: opts.Backend, defaultAffinity: opts.DefaultAffinity, maxTurns: opts.MaxTurns}, nil
}

func (s *Storage) Close() error {
	return s.b.Close()
}

// Backend reports the driver name.
func (s *Storage) Backend() string { return s.name }

func (s *Storage) defaults() companion.State {
	return companion.State{History: []companion.Turn{}, Affinity: s.defaultAffinity}
}

// Load returns the user's state, or defaults when it is missing or
// unreadable.
func (s *Storage) Load(ctx context.Context, userID string) companion.State {
	st, ok, err := s.b.get(ctx, userID)
	if err != nil {
		log.Error().Str("component", "storage").Str("backend", s.name).Str("user", userID).Err(err).Msg("load failed, using defaults")
		return s.defaults()
	}
	if !ok {
		return s.defaults()
	}
	if st.History == nil {
		st.History = []companion.Turn{}
	}
	st.History = companion.TrimHistory(st.History, s.maxTurns)
	return st
}

func (s *Storage) Save(ctx context.Context, userID string, st companion.State) error {
	if st.History == nil {
		st.History = []companion.Turn{}
	}
	if err := s.b.put(ctx, userID, st); err != nil {
		return fmt.Errorf("save %s: %w", userID, err)
	}
	return nil
}

func (s *Storage) ListUserIDs(ctx context.Context) ([]string, error) {
	ids, err := s.b.ids(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return ids, nil
}

// Maintain runs the backend's periodic housekeeping.
func (s *Storage) Maintain(ctx context.Context) error {
	return s.b.maintain(ctx)
}
