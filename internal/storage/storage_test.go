package storage

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"dm-companion/internal/companion"
)

func openBackends(t *testing.T) map[string]*Storage {
	t.Helper()
	dir := t.TempDir()
	out := make(map[string]*Storage)
	for _, backend := range []string{BackendSQLite, BackendJSON} {
		s, err := New(Options{
			Backend:         backend,
			DatabasePath:    filepath.Join(dir, "companion.db"),
			StoragePath:     filepath.Join(dir, "companion.json"),
			DefaultAffinity: 30,
			MaxTurns:        10,
		})
		if err != nil {
			t.Fatalf("New(%s): %v", backend, err)
		}
		t.Cleanup(func() { s.Close() })
		out[backend] = s
	}
	return out
}

func TestLoadMissingUserReturnsDefaults(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			st := s.Load(context.Background(), "nobody")
			if st.Affinity != 30 || st.History == nil || len(st.History) != 0 {
				t.Fatalf("state = %+v", st)
			}
		})
	}
}

func TestSaveLoadRoundTripAndUpsert(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			first := companion.State{
				History:  []companion.Turn{{Role: companion.RoleUser, Content: "hi"}, {Role: companion.RoleModel, Content: "hello!"}},
				Affinity: 42,
			}
			if err := s.Save(ctx, "u1", first); err != nil {
				t.Fatalf("Save: %v", err)
			}
			second := companion.State{History: append(first.History, companion.Turn{Role: companion.RoleModel, Content: "miss me?"}), Affinity: 44}
			if err := s.Save(ctx, "u1", second); err != nil {
				t.Fatalf("Save again: %v", err)
			}
			if err := s.Save(ctx, "u2", companion.State{Affinity: 10}); err != nil {
				t.Fatalf("Save u2: %v", err)
			}

			got := s.Load(ctx, "u1")
			if got.Affinity != 44 || !slices.Equal(got.History, second.History) {
				t.Fatalf("Load = %+v", got)
			}

			ids, err := s.ListUserIDs(ctx)
			if err != nil {
				t.Fatalf("ListUserIDs: %v", err)
			}
			if !slices.Equal(ids, []string{"u1", "u2"}) {
				t.Fatalf("ids = %v", ids)
			}
			if err := s.Maintain(ctx); err != nil {
				t.Fatalf("Maintain: %v", err)
			}
		})
	}
}

func TestJSONStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	opts := Options{Backend: BackendJSON, StoragePath: path, DefaultAffinity: 30}

	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Save(context.Background(), "u1", companion.State{Affinity: 77}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s.Close()

	s, err = New(opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if got := s.Load(context.Background(), "u1").Affinity; got != 77 {
		t.Fatalf("affinity = %d, want 77", got)
	}
}

func TestUnknownBackend(t *testing.T) {
	if _, err := New(Options{Backend: "redis"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestIsConflict(t *testing.T) {
	if !isConflict(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Fatal("busy error not detected")
	}
	if isConflict(errors.New("no such table")) || isConflict(nil) {
		t.Fatal("false positive")
	}
}
