package storage

import (
	"context"
	"errors"
	"strings"

	"dm-companion/datastore"
	"dm-companion/internal/companion"
)

const userKeyPrefix = "user:"

// jsonStore keeps every conversation in one JSON document.
type jsonStore struct {
	ds *datastore.DataStore
}

func openJSON(path string) (*jsonStore, error) {
	if path == "" {
		return nil, errors.New("storage path is empty")
	}
	ds, err := datastore.New(path)
	if err != nil {
		return nil, err
	}
	return &jsonStore{ds: ds}, nil
}

func (s *jsonStore) get(_ context.Context, userID string) (companion.State, bool, error) {
	var st companion.State
	ok, err := s.ds.Decode(userKeyPrefix+userID, &st)
	if err != nil || !ok {
		return companion.State{}, false, err
	}
	return st, true, nil
}

func (s *jsonStore) put(_ context.Context, userID string, st companion.State) error {
	return s.ds.Add(userKeyPrefix+userID, st)
}

func (s *jsonStore) ids(context.Context) ([]string, error) {
	keys := s.ds.Keys(userKeyPrefix)
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, userKeyPrefix))
	}
	return ids, nil
}

// maintain flushes pending writes ahead of the autosave tick.
func (s *jsonStore) maintain(context.Context) error {
	return s.ds.SaveToFile()
}

func (s *jsonStore) Close() error {
	return s.ds.Close()
}
