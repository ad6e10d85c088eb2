// Package persist stores wizard drafts in named slots so an in-progress
// movement survives closing the wizard, a page reload or a gateway redirect.
package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Slot names. The gateway recovery record lives apart from the snapshot so
// discarding a draft never loses an in-flight authorization, and vice versa.
const (
	SnapshotSlot      = "wizard.snapshot"
	GatewayReturnSlot = "wizard.gateway-return"
)

var (
	// ErrSlotEmpty is returned by Load when nothing is stored.
	ErrSlotEmpty = errors.New("slot is empty")
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Slot is a single keyed blob.
type Slot interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Delete(ctx context.Context) error
}

// Backend hands out slots and owns their shared resources.
type Backend interface {
	Slot(name string) Slot
	Name() string
	Close() error
}

// Backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options selects and configures a backend. It mirrors config.StorageConfig.
type Options struct {
	Backend string

	// file
	Dir string

	// sqlite
	SQLitePath   string
	SQLiteDriver string // "sqlite3" (mattn, cgo) or "sqlite" (modernc, pure Go)

	// redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	RedisTTL      time.Duration
}

// Open builds the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendFile, "":
		b, err := NewFileBackend(opts.Dir)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendSQLite:
		b, err := OpenSQLite(ctx, opts.SQLiteDriver, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendRedis:
		b, err := OpenRedis(ctx, RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Prefix:   opts.RedisPrefix,
			TTL:      opts.RedisTTL,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendMemory:
		return NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
}
