//go:generate mockgen -package mocks -destination mocks/storage.go -source=storage.go

// Package storage gives read-only access to the object stores holding the Parquet exports.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/relloyd/sunglass-etl/aws/s3"
	c "github.com/relloyd/sunglass-etl/constants"
)

// Bucket is a location holding files.
type Bucket interface {
	// List returns every file key below the bucket root, relative to the root and "/" separated.
	List(ctx context.Context) ([]string, error)
	// Get returns the content of the file key.
	Get(ctx context.Context, key string) ([]byte, error)
	// String describes the location.
	String() string
}

// Options tune the backends.
type Options struct {
	S3Region   string
	S3Endpoint string
}

// Opener opens a Bucket for a location URL.
type Opener func(location string) (Bucket, error)

// NewOpener returns an Opener for s3:// and file:// locations. Locations without a scheme are local paths.
func NewOpener(opts Options) Opener {
	return func(location string) (Bucket, error) {
		return Open(location, opts)
	}
}

// Open returns the Bucket for location.
func Open(location string, opts Options) (Bucket, error) {
	scheme := ""
	if i := strings.Index(location, "://"); i > 0 {
		scheme = location[:i]
	}
	switch scheme {
	case c.ConnectionTypeS3:
		l, err := s3.ParseLocation(location, opts.S3Region)
		if err != nil {
			return nil, err
		}
		client, err := s3.NewBasicClient(l.Bucket, l.Region, l.Prefix, opts.S3Endpoint)
		if err != nil {
			return nil, err
		}
		return &s3Bucket{client: client, location: location}, nil
	case c.ConnectionTypeFile:
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("error parsing file URL %q: %w", location, err)
		}
		return &fileBucket{root: filepath.FromSlash(u.Host + u.Path)}, nil
	case "":
		return &fileBucket{root: location}, nil
	}
	return nil, fmt.Errorf("unsupported storage scheme %q in location %q", scheme, location)
}

type s3Bucket struct {
	client   s3.BasicClient
	location string
}

func (b *s3Bucket) List(ctx context.Context) ([]string, error) {
	keys, err := b.client.List(ctx, "")
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *s3Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	return b.client.Get(ctx, key)
}

func (b *s3Bucket) String() string {
	return b.location
}

type fileBucket struct {
	root string
}

func (b *fileBucket) List(ctx context.Context) ([]string, error) {
	keys := make([]string, 0)
	err := filepath.WalkDir(b.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *fileBucket) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(b.root, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil, s3.ErrKeyNotFound
	}
	return data, err
}

func (b *fileBucket) String() string {
	return "file://" + filepath.ToSlash(b.root)
}
