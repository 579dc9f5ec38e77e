package s3

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")

// BasicClient is read-only access to one bucket prefix.
type BasicClient interface {
	Lister
	Getter
}

type Lister interface {
	// List returns every key below the client prefix whose name starts with key.
	// Keys are returned relative to the client prefix.
	List(ctx context.Context, key string) (keys []string, err error)
}

type Getter interface {
	// Get returns ErrKeyNotFound if the given key doesn't exist.
	Get(ctx context.Context, key string) (data []byte, err error)
}
