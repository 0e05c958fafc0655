// Package storage persists the seen-ad ledger and the accumulated ad archive.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/carwatch/olx-monitor/internal/models"
)

// ErrNoBackend is returned by administrative operations when no durable
// backend is configured.
var ErrNoBackend = errors.New("no durable storage backend configured")

// Ledger remembers which ad identifiers have already been processed.
type Ledger interface {
	IsSeen(ctx context.Context, adID string) (bool, error)
	// MarkSeen is idempotent.
	MarkSeen(ctx context.Context, adID string) error
	// Reset forgets every identifier and returns how many were removed.
	Reset(ctx context.Context) (int, error)
}

// Archive keeps every ad ever reported.
type Archive interface {
	// Append stores ad unless a record with the same ID already exists.
	Append(ctx context.Context, ad models.AdRecord) error
	// ListAll returns the archive newest first.
	ListAll(ctx context.Context) ([]models.AdRecord, error)
}

// Recorder is implemented by backends that can mark an ad seen and archive it
// in one transaction.
type Recorder interface {
	Record(ctx context.Context, ad models.AdRecord) error
}

type Backend interface {
	Ledger
	Archive
	Close() error
}

// Open selects a backend from dsn:
//
//	""                     no persistence
//	file://<dir>           JSON files
//	postgres://...         PostgreSQL
//	sqlite://<path>        SQLite
//	firestore://<project>  Cloud Firestore
func Open(ctx context.Context, dsn string) (Backend, error) {
	scheme, rest, _ := strings.Cut(dsn, "://")
	switch {
	case dsn == "":
		return Noop{}, nil
	case scheme == "file":
		return NewFileStore(rest)
	case scheme == "postgres" || scheme == "postgresql":
		return OpenSQL(ctx, Postgres, dsn)
	case scheme == "sqlite":
		return OpenSQL(ctx, SQLite, rest)
	case scheme == "firestore":
		return NewFirestore(ctx, rest)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme %q", scheme)
	}
}
