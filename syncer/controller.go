package syncer

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"propsyncd/config"
	"propsyncd/fetcher"
	"propsyncd/models"
	"propsyncd/normalize"
	"propsyncd/notify"
	"propsyncd/storage"
)

const (
	pauseEvery = 5
	pauseFor   = 1 * time.Second
	stopGrace  = 2 * time.Second
)

// Controller is the single-flight run state machine. At most one sync pass
// runs at a time; triggers race on the running flag and the loser gets
// models.ErrAlreadyRunning. The pass itself executes asynchronously and
// checks the flag between records, so a stop request is honored at the next
// record boundary without interrupting in-flight work.
type Controller struct {
	cfg        *config.Config
	store      storage.Store
	fetcher    *fetcher.Fetcher
	reconciler *Reconciler
	notifier   *notify.Notifier
	logs       *LogBuffer

	mu       sync.Mutex
	running  bool
	progress float64
	lastRun  *time.Time
	stats    models.ImportStats
	done     chan struct{}
	cancel   context.CancelFunc

	pauseEvery int
	pauseFor   time.Duration
	stopGrace  time.Duration
}

func NewController(cfg *config.Config, store storage.Store, f *fetcher.Fetcher, n *notify.Notifier) *Controller {
	c := &Controller{
		cfg:        cfg,
		store:      store,
		fetcher:    f,
		notifier:   n,
		logs:       NewLogBuffer(),
		pauseEvery: pauseEvery,
		pauseFor:   pauseFor,
		stopGrace:  stopGrace,
	}

	// Restore the durable state. A running flag left by a crashed process
	// is stale; clear it so the next trigger is not refused forever.
	if st, err := store.LoadRunState(context.Background()); err == nil && st != nil {
		c.lastRun = st.LastRunAt
		if st.IsRunning {
			log.Println("clearing stale running flag from previous process")
			c.persistState(false, 0)
		}
	}
	return c
}

// SetReconciler wires the reconciler after construction. The reconciler
// logs through the controller's ring buffer, so it cannot exist first.
func (c *Controller) SetReconciler(r *Reconciler) {
	c.reconciler = r
}

// Log appends to the ring buffer and mirrors to the process log. The
// controller is the models.Logger for the whole sync engine.
func (c *Controller) Log(level models.LogLevel, message string, context map[string]string) {
	c.logs.Append(models.LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Context:   context,
	})
	if len(context) > 0 {
		log.Printf("[%s] %s %v", level, message, context)
	} else {
		log.Printf("[%s] %s", level, message)
	}
}

// Start begins an asynchronous sync pass. Returns models.ErrAlreadyRunning
// when a pass is already in flight.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return models.ErrAlreadyRunning
	}
	c.running = true
	c.progress = 0
	c.stats = models.ImportStats{}
	done := make(chan struct{})
	c.done = done
	// The pass outlives the trigger request; only process shutdown
	// cancels it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.mu.Unlock()

	c.persistState(true, 0)
	c.Log(models.LogLevelInfo, "sync started", nil)

	go c.runPass(runCtx, done)
	return nil
}

func (c *Controller) runPass(ctx context.Context, done chan struct{}) {
	defer close(done)

	run := &models.SyncRun{StartedAt: time.Now(), Status: models.RunStatusRunning}
	if id, err := c.store.CreateRun(ctx, run); err == nil {
		run.ID = id
	} else {
		log.Printf("record run start: %v", err)
	}

	raws, err := c.fetcher.FetchAll(ctx, c.cfg.SourceURL())
	if err != nil {
		c.Log(models.LogLevelError, "failed to fetch from source", map[string]string{"error": err.Error()})
		c.finishRun(run, models.RunStatusFailed, false)
		return
	}

	total := len(raws)
	c.mu.Lock()
	c.stats.Total = total
	c.stats.Queued = total
	c.mu.Unlock()
	c.Log(models.LogLevelInfo, fmt.Sprintf("fetched %d records from source", total), nil)

	seen := make(map[string]bool, total)
	stopped := false
	for i := range raws {
		if !c.IsRunning() || ctx.Err() != nil {
			stopped = true
			c.Log(models.LogLevelWarning, "sync stopped by user", nil)
			break
		}

		c.processRecord(ctx, raws[i], seen)

		processed := i + 1
		c.setProgress(float64(processed) / float64(total) * 100)
		if processed%c.pauseEvery == 0 && processed < total {
			c.persistState(true, c.currentProgress())
			select {
			case <-time.After(c.pauseFor):
			case <-ctx.Done():
			}
		}
	}

	status := models.RunStatusCompleted
	if stopped {
		status = models.RunStatusStopped
	} else {
		// Full-sync contract: anything the source no longer lists is
		// removed. Skipped on a stopped pass, where the seen set is
		// incomplete.
		deleted, errs := c.reconciler.DeleteMissing(ctx, seen)
		c.mu.Lock()
		c.stats.Deleted += deleted
		c.stats.Errors += errs
		c.mu.Unlock()
		c.setProgress(100)
	}

	stats := c.Stats()
	c.Log(models.LogLevelSuccess, "sync finished", map[string]string{
		"total":   strconv.Itoa(stats.Total),
		"created": strconv.Itoa(stats.Created),
		"updated": strconv.Itoa(stats.Updated),
		"deleted": strconv.Itoa(stats.Deleted),
		"errors":  strconv.Itoa(stats.Errors),
	})

	c.finishRun(run, status, true)
	c.notifier.Notify(models.SyncEvent{
		Event:    models.EventSyncCompleted,
		Total:    stats.Total,
		Imported: stats.Imported,
		Errors:   stats.Errors,
		Deleted:  stats.Deleted,
	})
}

func (c *Controller) processRecord(ctx context.Context, raw models.RawRecord, seen map[string]bool) {
	p, err := normalize.Normalize(raw)
	if err != nil {
		c.Log(models.LogLevelError, "record rejected", map[string]string{"error": err.Error()})
		c.mu.Lock()
		c.stats.Errors++
		c.stats.Queued--
		c.mu.Unlock()
		return
	}

	created, err := c.reconciler.Apply(ctx, &p)
	if err != nil {
		c.Log(models.LogLevelError, "record upsert failed", map[string]string{
			"external_id": p.ExternalID, "error": err.Error(),
		})
		c.mu.Lock()
		c.stats.Errors++
		c.stats.Queued--
		c.mu.Unlock()
		return
	}

	seen[p.ExternalID] = true
	c.mu.Lock()
	c.stats.Queued--
	c.stats.Imported++
	if created {
		c.stats.Created++
	} else {
		c.stats.Updated++
	}
	c.mu.Unlock()

	c.Log(models.LogLevelSuccess, "property imported", map[string]string{
		"external_id": p.ExternalID, "title": p.Title,
	})
}

// StopResult is what the stop endpoint returns: the final counters plus the
// buffered log so the caller sees how far the pass got.
type StopResult struct {
	Message   string             `json:"message"`
	IsRunning bool               `json:"is_running"`
	Progress  float64            `json:"progress_percent"`
	Stats     models.ImportStats `json:"stats"`
	Logs      []models.LogEntry  `json:"logs"`
}

// Stop flips the running flag and waits briefly for the pass to yield. The
// in-flight record is never interrupted; the pass observes the flag at the
// next record boundary.
func (c *Controller) Stop() StopResult {
	c.mu.Lock()
	wasRunning := c.running
	c.running = false
	done := c.done
	c.mu.Unlock()

	message := "no sync in progress"
	if wasRunning {
		message = "sync stopped"
		c.persistState(false, c.currentProgress())
		if done != nil {
			select {
			case <-done:
			case <-time.After(c.stopGrace):
			}
		}
	}

	return StopResult{
		Message:   message,
		IsRunning: false,
		Progress:  c.currentProgress(),
		Stats:     c.Stats(),
		Logs:      c.logs.Recent(),
	}
}

// Shutdown cancels the in-flight pass for process exit.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	c.running = false
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(c.stopGrace):
		}
	}
}

func (c *Controller) Status() models.SyncStatus {
	c.mu.Lock()
	st := models.SyncStatus{
		IsRunning: c.running,
		Progress:  c.progress,
		LastRunAt: c.lastRun,
		Stats:     c.stats,
	}
	c.mu.Unlock()
	st.RecentLogs = c.logs.Recent()
	return st
}

func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) Stats() models.ImportStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Controller) ClearLogs() {
	c.logs.Clear()
	c.Log(models.LogLevelInfo, "logs cleared", nil)
}

// RepairRecord fetches one record by id and reapplies it, for fixing a
// single listing without a full pass. Refused while a pass is running.
func (c *Controller) RepairRecord(ctx context.Context, id string) (*models.Property, error) {
	if c.IsRunning() {
		return nil, models.ErrAlreadyRunning
	}

	raw, err := c.fetcher.FetchByID(ctx, c.cfg.SourceURL(), id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, &models.FetchError{Message: "record not found: " + id}
	}

	p, err := normalize.Normalize(raw)
	if err != nil {
		return nil, err
	}
	if _, err := c.reconciler.Apply(ctx, &p); err != nil {
		return nil, err
	}
	c.Log(models.LogLevelSuccess, "record repaired", map[string]string{"external_id": p.ExternalID})
	c.notifier.Notify(models.SyncEvent{
		Event:    models.EventImportCompleted,
		Total:    1,
		Imported: 1,
	})
	return &p, nil
}

func (c *Controller) setProgress(pct float64) {
	c.mu.Lock()
	c.progress = pct
	c.mu.Unlock()
}

func (c *Controller) currentProgress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// finishRun records the terminal state of a pass: the durable flag, the
// last-run timestamp when the pass got past the fetch, and the history row.
func (c *Controller) finishRun(run *models.SyncRun, status models.RunStatus, recordLastRun bool) {
	now := time.Now()

	c.mu.Lock()
	c.running = false
	if recordLastRun {
		c.lastRun = &now
	}
	progress := c.progress
	stats := c.stats
	c.mu.Unlock()

	st := &models.RunState{IsRunning: false, Progress: progress}
	if recordLastRun {
		st.LastRunAt = &now
	}
	if err := c.store.SaveRunState(context.Background(), st); err != nil {
		log.Printf("persist run state: %v", err)
	}

	run.FinishedAt = &now
	run.Status = status
	run.Total = stats.Total
	run.Created = stats.Created
	run.Updated = stats.Updated
	run.Deleted = stats.Deleted
	run.Errors = stats.Errors
	if run.ID != 0 {
		if err := c.store.UpdateRun(context.Background(), run); err != nil {
			log.Printf("record run finish: %v", err)
		}
	}
}

func (c *Controller) persistState(running bool, progress float64) {
	c.mu.Lock()
	lastRun := c.lastRun
	c.mu.Unlock()

	st := &models.RunState{IsRunning: running, Progress: progress, LastRunAt: lastRun}
	if err := c.store.SaveRunState(context.Background(), st); err != nil {
		log.Printf("persist run state: %v", err)
	}
}
