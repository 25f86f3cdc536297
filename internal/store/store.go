package store

import (
	"context"

	"github.com/me/govm/pkg/model"
)

// Store is the dispatch journal: a durable record of every launched
// package, its release, and every object that went idle.
type Store interface {
	// Scheduler journal hooks
	RecordLaunch(ctx context.Context, rec *model.PackageRecord) error
	RecordRelease(ctx context.Context, packageID string, tick uint64, failure string) error
	RecordIdle(ctx context.Context, ev *model.IdleEvent) error

	// Queries
	GetPackage(ctx context.Context, id string) (*model.PackageRecord, error)
	ListPackages(ctx context.Context, opts model.ListOptions) ([]*model.PackageRecord, int, error)
	ListIdleEvents(ctx context.Context, opts model.ListOptions) ([]*model.IdleEvent, int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
