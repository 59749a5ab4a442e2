package storage

import (
	"context"

	"propsyncd/models"
)

// PropertyStore is the capability set the reconciler and asset pipeline
// operate against. The store is the sole owner of persisted records; the
// sync engine only reads the external-id index and issues CRUD calls.
type PropertyStore interface {
	// LookupByExternalID resolves the source id to a local record id.
	LookupByExternalID(ctx context.Context, externalID string) (int64, bool, error)
	// ListAll returns every (local id, external id) pair for diffing.
	ListAll(ctx context.Context) ([]models.StoreRecord, error)
	Create(ctx context.Context, p *models.Property) (int64, error)
	Update(ctx context.Context, localID int64, p *models.Property) error
	// Delete removes the record with its attachments, field data, and tags.
	Delete(ctx context.Context, localID int64) error

	// AttachImage registers an image binary owned by the record and returns
	// its attachment handle. Linking into the record's image list is a
	// separate step so ingestion can replace the whole list atomically.
	AttachImage(ctx context.Context, localID int64, filename string, data []byte, contentType string) (int64, error)
	LinkImages(ctx context.Context, localID int64, handles []int64) error
	ClearImages(ctx context.Context, localID int64) error
	SetPrimaryImage(ctx context.Context, localID int64, handle int64) error
}

// RunStore persists the run flag and run history so a trigger and its
// asynchronous pass observe the same state across restarts.
type RunStore interface {
	SaveRunState(ctx context.Context, st *models.RunState) error
	LoadRunState(ctx context.Context) (*models.RunState, error)
	CreateRun(ctx context.Context, run *models.SyncRun) (int64, error)
	UpdateRun(ctx context.Context, run *models.SyncRun) error
}

type Store interface {
	PropertyStore
	RunStore
	Close() error
}
