package storage

import (
	"context"

	"github.com/carwatch/olx-monitor/internal/models"
)

// Noop is used when DATABASE_URL is empty. Every ad looks new on every cycle
// and nothing is archived.
type Noop struct{}

func (Noop) IsSeen(context.Context, string) (bool, error) { return false, nil }
func (Noop) MarkSeen(context.Context, string) error { return nil }
func (Noop) Reset(context.Context) (int, error) { return 0, ErrNoBackend }
func (Noop) Append(context.Context, models.AdRecord) error { return nil }
func (Noop) ListAll(context.Context) ([]models.AdRecord, error) { return []models.AdRecord{}, nil }
func (Noop) Close() error { return nil }
