package datastore

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestAddDecodeAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "store.json")
	ds, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ds.Add("user:1", record{Name: "a", Count: 2}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	var got record
	ok, err := reopened.Decode("user:1", &got)
	if err != nil || !ok {
		t.Fatalf("Decode = %v, %v", ok, err)
	}
	if got != (record{Name: "a", Count: 2}) {
		t.Fatalf("got %+v", got)
	}
	if ok, _ := reopened.Decode("missing", &got); ok {
		t.Fatal("missing key reported present")
	}
}

func TestKeysByPrefix(t *testing.T) {
	ds, err := New(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ds.Close()

	for _, k := range []string{"user:2", "meta", "user:1"} {
		if err := ds.Add(k, 1); err != nil {
			t.Fatalf("Add(%s): %v", k, err)
		}
	}
	ds.Delete("user:2")
	if got := ds.Keys("user:"); !slices.Equal(got, []string{"user:1"}) {
		t.Fatalf("Keys = %v", got)
	}
}

func TestMemoryLimitAndClosed(t *testing.T) {
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "store.json"))
	cfg.MaxMemorySize = 8
	cfg.BackupCount = 0
	ds, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	if err := ds.Add("k", "a string that is too long"); !errors.Is(err, ErrMemoryLimit) {
		t.Fatalf("err = %v, want ErrMemoryLimit", err)
	}
	ds.Close()
	if err := ds.Add("k", 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
