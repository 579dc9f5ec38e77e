package state

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/mitchellh/go-homedir"
)

const keySeparator = "\x00"

// PebbleStore implements Store using a local PebbleDB under the pipelines directory.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens (or creates) the state db for pipelineName under pipelinesDir.
// A leading ~ in pipelinesDir is expanded to the user's home directory.
func NewPebbleStore(pipelinesDir string, pipelineName string) (*PebbleStore, error) {
	dir, err := homedir.Expand(pipelinesDir)
	if err != nil {
		return nil, fmt.Errorf("error expanding pipelines dir %q: %w", pipelinesDir, err)
	}
	d, err := pebble.Open(filepath.Join(filepath.Clean(dir), pipelineName, "state"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func encodePebbleKey(k Key) []byte {
	return []byte(strings.Join([]string{k.Pipeline, k.Table, k.Column}, keySeparator))
}

func decodePebbleKey(b []byte) (Key, error) {
	parts := strings.Split(string(b), keySeparator)
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("malformed state key %q", string(b))
	}
	return Key{Pipeline: parts[0], Table: parts[1], Column: parts[2]}, nil
}

func (p *PebbleStore) Get(_ context.Context, key Key) (Mark, bool, error) {
	v, closer, err := p.db.Get(encodePebbleKey(key))
	if err == pebble.ErrNotFound {
		return Mark{}, false, nil
	} else if err != nil {
		return Mark{}, false, err
	}
	defer closer.Close()
	var m Mark
	if err := json.Unmarshal(v, &m); err != nil {
		return Mark{}, false, fmt.Errorf("error decoding state for %v: %w", key, err)
	}
	return m, true, nil
}

// Set writes the mark and syncs the WAL so it survives a crash straight after the load commits.
func (p *PebbleStore) Set(_ context.Context, key Key, value string) error {
	b, err := json.Marshal(Mark{Value: value, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return p.db.Set(encodePebbleKey(key), b, pebble.Sync)
}

// Range calls fn for every stored mark in key order.
func (p *PebbleStore) Range(fn func(key Key, m Mark) error) error {
	it, err := p.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		k, err := decodePebbleKey(it.Key())
		if err != nil {
			return err
		}
		var m Mark
		if err := json.Unmarshal(it.Value(), &m); err != nil {
			return err
		}
		if err := fn(k, m); err != nil {
			return fmt.Errorf("range callback failed: %w", err)
		}
	}
	return it.Error()
}
