// Package storage holds uploaded files. Callers keep only the key returned
// by Put.
package storage

import (
	"context"
	"io"

	"github.com/jwalitptl/carebook/pkg/errors"
)

type Object struct {
	Key         string
	ContentType string
	Size        int64
}

type BlobStore interface {
	Put(ctx context.Context, key, contentType string, size int64, body io.Reader) (*Object, error)
	// Get returns the object body; the caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, *Object, error)
	Delete(ctx context.Context, key string) error
}

type Config struct {
	Driver          string `mapstructure:"driver" split_words:"true"`
	Bucket          string `mapstructure:"bucket" split_words:"true"`
	Region          string `mapstructure:"region" split_words:"true"`
	Endpoint        string `mapstructure:"endpoint" split_words:"true"`
	AccessKeyID     string `mapstructure:"access_key_id" split_words:"true"`
	SecretAccessKey string `mapstructure:"secret_access_key" split_words:"true"`
	UsePathStyle    bool   `mapstructure:"use_path_style" split_words:"true"`
}

// New returns the store selected by cfg.Driver ("s3" or "memory").
func New(ctx context.Context, cfg Config) (BlobStore, error) {
	switch cfg.Driver {
	case "", "s3":
		return NewS3Store(ctx, cfg)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, errors.Validation("unknown storage driver "+cfg.Driver, nil)
	}
}
