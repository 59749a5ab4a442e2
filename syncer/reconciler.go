package syncer

import (
	"context"

	"propsyncd/media"
	"propsyncd/models"
	"propsyncd/storage"
)

// Reconciler diffs the normalized source set against the store's
// external-id index and applies the minimal create/update/delete set. It
// owns no state of its own.
type Reconciler struct {
	store    storage.PropertyStore
	pipeline *media.Pipeline
	logger   models.Logger
}

func NewReconciler(store storage.PropertyStore, pipeline *media.Pipeline, logger models.Logger) *Reconciler {
	return &Reconciler{store: store, pipeline: pipeline, logger: logger}
}

// Result counts one reconciliation pass.
type Result struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Errors  int `json:"errors"`
}

// Apply upserts one property by external id and re-runs image ingestion
// against the record. Returns true when a new record was created.
func (r *Reconciler) Apply(ctx context.Context, p *models.Property) (bool, error) {
	localID, exists, err := r.store.LookupByExternalID(ctx, p.ExternalID)
	if err != nil {
		return false, &models.StoreWriteError{Op: "lookup", Err: err}
	}

	if exists {
		if err := r.store.Update(ctx, localID, p); err != nil {
			return false, &models.StoreWriteError{Op: "update", Err: err}
		}
		r.ingestImages(ctx, localID, p)
		return false, nil
	}

	localID, err = r.store.Create(ctx, p)
	if err != nil {
		return false, &models.StoreWriteError{Op: "create", Err: err}
	}
	r.ingestImages(ctx, localID, p)
	return true, nil
}

func (r *Reconciler) ingestImages(ctx context.Context, localID int64, p *models.Property) {
	if r.pipeline == nil {
		return
	}
	if len(p.Images) == 0 {
		r.logger.Log(models.LogLevelWarning, "property has no images",
			map[string]string{"external_id": p.ExternalID})
		return
	}
	r.pipeline.Ingest(ctx, localID, p.Images)
}

// DeleteMissing removes every stored record whose external id is absent
// from the seen set: assets, field data, and tags go with the record.
func (r *Reconciler) DeleteMissing(ctx context.Context, seen map[string]bool) (deleted, errors int) {
	existing, err := r.store.ListAll(ctx)
	if err != nil {
		r.logger.Log(models.LogLevelError, "list stored records failed",
			map[string]string{"error": err.Error()})
		return 0, 1
	}

	for _, rec := range existing {
		if seen[rec.ExternalID] {
			continue
		}
		if err := r.store.Delete(ctx, rec.LocalID); err != nil {
			r.logger.Log(models.LogLevelError, "delete record failed",
				map[string]string{"external_id": rec.ExternalID, "error": err.Error()})
			errors++
			continue
		}
		r.logger.Log(models.LogLevelInfo, "property deleted",
			map[string]string{"external_id": rec.ExternalID})
		deleted++
	}
	return deleted, errors
}

// Reconcile runs a whole diff in one call: every incoming property applied
// in order (duplicate external ids are last-write-wins, by design), then
// stale records removed. The run controller drives the same steps itself to
// interleave progress updates and cancellation checks.
func (r *Reconciler) Reconcile(ctx context.Context, incoming []models.Property) Result {
	result := Result{Total: len(incoming)}
	seen := make(map[string]bool, len(incoming))

	for i := range incoming {
		p := &incoming[i]
		created, err := r.Apply(ctx, p)
		if err != nil {
			r.logger.Log(models.LogLevelError, "record upsert failed",
				map[string]string{"external_id": p.ExternalID, "error": err.Error()})
			result.Errors++
			continue
		}
		seen[p.ExternalID] = true
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	deleted, errors := r.DeleteMissing(ctx, seen)
	result.Deleted += deleted
	result.Errors += errors
	return result
}
