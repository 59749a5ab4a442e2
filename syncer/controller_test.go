package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"propsyncd/config"
	"propsyncd/fetcher"
	"propsyncd/models"
	"propsyncd/notify"
)

type memStore struct {
	mu      sync.Mutex
	nextID  int64
	byID    map[int64]*models.Property
	byExt   map[string]int64
	state   models.RunState
	runs    []*models.SyncRun
	delay   time.Duration
	failOps map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		byID:    make(map[int64]*models.Property),
		byExt:   make(map[string]int64),
		failOps: make(map[string]error),
	}
}

func (m *memStore) seed(externalID, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.byID[m.nextID] = &models.Property{ExternalID: externalID, Title: title}
	m.byExt[externalID] = m.nextID
}

func (m *memStore) LookupByExternalID(ctx context.Context, externalID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byExt[externalID]
	return id, ok, nil
}

func (m *memStore) ListAll(ctx context.Context) ([]models.StoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StoreRecord
	for ext, id := range m.byExt {
		out = append(out, models.StoreRecord{LocalID: id, ExternalID: ext})
	}
	return out, nil
}

func (m *memStore) Create(ctx context.Context, p *models.Property) (int64, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOps["create"]; err != nil {
		return 0, err
	}
	m.nextID++
	cp := *p
	m.byID[m.nextID] = &cp
	m.byExt[p.ExternalID] = m.nextID
	return m.nextID, nil
}

func (m *memStore) Update(ctx context.Context, localID int64, p *models.Property) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOps["update"]; err != nil {
		return err
	}
	cp := *p
	m.byID[localID] = &cp
	return nil
}

func (m *memStore) Delete(ctx context.Context, localID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ext, id := range m.byExt {
		if id == localID {
			delete(m.byExt, ext)
		}
	}
	delete(m.byID, localID)
	return nil
}

func (m *memStore) AttachImage(ctx context.Context, localID int64, filename string, data []byte, contentType string) (int64, error) {
	return 1, nil
}

func (m *memStore) LinkImages(ctx context.Context, localID int64, handles []int64) error { return nil }
func (m *memStore) ClearImages(ctx context.Context, localID int64) error                { return nil }
func (m *memStore) SetPrimaryImage(ctx context.Context, localID int64, handle int64) error {
	return nil
}

func (m *memStore) SaveRunState(ctx context.Context, st *models.RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = *st
	return nil
}

func (m *memStore) LoadRunState(ctx context.Context) (*models.RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state
	return &st, nil
}

func (m *memStore) CreateRun(ctx context.Context, run *models.SyncRun) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs = append(m.runs, &cp)
	return int64(len(m.runs)), nil
}

func (m *memStore) UpdateRun(ctx context.Context, run *models.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID >= 1 && int(run.ID) <= len(m.runs) {
		cp := *run
		m.runs[run.ID-1] = &cp
	}
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byExt)
}

func (m *memStore) has(externalID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byExt[externalID]
	return ok
}

func (m *memStore) lastRun() *models.SyncRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) == 0 {
		return nil
	}
	return m.runs[len(m.runs)-1]
}

// sourceRecords serves a paginated catalog plus single-record lookups.
func sourceServer(records []map[string]any) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if id := r.URL.Query().Get("id"); id != "" {
			for _, rec := range records {
				if fmt.Sprint(rec["id"]) == id {
					json.NewEncoder(w).Encode(rec)
					return
				}
			}
			w.Write([]byte("null"))
			return
		}

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 {
			perPage = 20
		}
		start := (page - 1) * perPage
		if start >= len(records) {
			w.Write([]byte("[]"))
			return
		}
		end := start + perPage
		if end > len(records) {
			end = len(records)
		}
		json.NewEncoder(w).Encode(records[start:end])
	}))
}

func sourceRecord(id int) map[string]any {
	return map[string]any{
		"id":       id,
		"title":    fmt.Sprintf("Listing %d", id),
		"price":    "100.000 TL",
		"location": "Istanbul / Kadikoy",
	}
}

func newTestController(t *testing.T, store *memStore, srv *httptest.Server, webhookURL string) *Controller {
	t.Helper()

	cfg := &config.Config{}
	cfg.SetSourceURL(srv.URL)
	if webhookURL != "" {
		cfg.SetWebhook(webhookURL, "test-secret")
	}

	f := fetcher.New(srv.Client())
	n := notify.New(cfg, srv.Client())

	c := NewController(cfg, store, f, n)
	c.pauseFor = 5 * time.Millisecond
	c.stopGrace = 2 * time.Second
	c.SetReconciler(NewReconciler(store, nil, c))
	return c
}

func waitForPass(t *testing.T, c *Controller) {
	t.Helper()
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		t.Fatal("no pass started")
	}
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("sync pass did not finish")
	}
}

func TestController_FullSyncPass(t *testing.T) {
	records := []map[string]any{sourceRecord(1), sourceRecord(2)}
	srv := sourceServer(records)
	defer srv.Close()

	store := newMemStore()
	store.seed("1", "Old Title 1")
	store.seed("999", "No Longer Listed")

	events := make(chan models.SyncEvent, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e models.SyncEvent
		json.NewDecoder(r.Body).Decode(&e)
		events <- e
	}))
	defer hook.Close()

	c := newTestController(t, store, srv, hook.URL)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForPass(t, c)

	stats := c.Stats()
	if stats.Created != 1 || stats.Updated != 1 || stats.Deleted != 1 || stats.Errors != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if store.count() != 2 || !store.has("1") || !store.has("2") || store.has("999") {
		t.Fatalf("store does not mirror source: %d records", store.count())
	}

	select {
	case e := <-events:
		if e.Event != "sync_completed" || e.Total != 2 || e.Deleted != 1 {
			t.Fatalf("unexpected webhook event %+v", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("expected a webhook delivery")
	}

	st := c.Status()
	if st.IsRunning || st.Progress != 100 || st.LastRunAt == nil {
		t.Fatalf("unexpected status %+v", st)
	}
	if run := store.lastRun(); run == nil || run.Status != models.RunStatusCompleted {
		t.Fatalf("expected completed run record, got %+v", store.lastRun())
	}
}

func TestController_SecondPassIsIdempotent(t *testing.T) {
	records := []map[string]any{sourceRecord(1), sourceRecord(2), sourceRecord(3)}
	srv := sourceServer(records)
	defer srv.Close()

	store := newMemStore()
	c := newTestController(t, store, srv, "")

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	waitForPass(t, c)
	if stats := c.Stats(); stats.Created != 3 {
		t.Fatalf("first pass: expected 3 created, got %+v", stats)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	waitForPass(t, c)

	stats := c.Stats()
	if stats.Created != 0 || stats.Updated != 3 || stats.Deleted != 0 {
		t.Fatalf("second pass not idempotent: %+v", stats)
	}
	if store.count() != 3 {
		t.Fatalf("expected 3 records, got %d", store.count())
	}
}

func TestController_StartWhileRunning(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	store := newMemStore()
	c := newTestController(t, store, srv, "")

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, models.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	close(release)
	waitForPass(t, c)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("restart after completion: %v", err)
	}
	waitForPass(t, c)
}

func TestController_StopSkipsDeletionPhase(t *testing.T) {
	var records []map[string]any
	for i := 1; i <= 40; i++ {
		records = append(records, sourceRecord(i))
	}
	srv := sourceServer(records)
	defer srv.Close()

	store := newMemStore()
	store.delay = 20 * time.Millisecond
	store.seed("999", "Must Survive The Stop")

	events := make(chan models.SyncEvent, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e models.SyncEvent
		json.NewDecoder(r.Body).Decode(&e)
		events <- e
	}))
	defer hook.Close()

	c := newTestController(t, store, srv, hook.URL)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	res := c.Stop()
	if res.IsRunning {
		t.Fatal("expected stopped state")
	}
	if res.Message != "sync stopped" {
		t.Fatalf("unexpected message %q", res.Message)
	}
	waitForPass(t, c)

	if !store.has("999") {
		t.Fatal("stopped pass must not delete records it did not reach")
	}
	if run := store.lastRun(); run == nil || run.Status != models.RunStatusStopped {
		t.Fatalf("expected stopped run record, got %+v", store.lastRun())
	}
	if c.Status().LastRunAt == nil {
		t.Fatal("a stopped pass still records its run time")
	}

	select {
	case e := <-events:
		if e.Event != "sync_completed" {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("expected webhook delivery after a stopped pass")
	}
}

func TestController_StopWithoutRun(t *testing.T) {
	srv := sourceServer(nil)
	defer srv.Close()

	c := newTestController(t, newMemStore(), srv, "")
	res := c.Stop()
	if res.Message != "no sync in progress" {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestController_FetchFailureNoNotify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	notified := false
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		notified = true
	}))
	defer hook.Close()

	store := newMemStore()
	store.seed("1", "Existing")

	c := newTestController(t, store, srv, hook.URL)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForPass(t, c)

	if notified {
		t.Fatal("a failed fetch must not fire the webhook")
	}
	if store.count() != 1 {
		t.Fatal("a failed fetch must leave the store untouched")
	}
	if c.Status().LastRunAt != nil {
		t.Fatal("a failed fetch must not record a run time")
	}
	if run := store.lastRun(); run == nil || run.Status != models.RunStatusFailed {
		t.Fatalf("expected failed run record, got %+v", store.lastRun())
	}
}

func TestController_RecordErrorsDoNotAbortPass(t *testing.T) {
	records := []map[string]any{
		sourceRecord(1),
		{"title": "no id here"},
		sourceRecord(3),
	}
	srv := sourceServer(records)
	defer srv.Close()

	store := newMemStore()
	c := newTestController(t, store, srv, "")

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForPass(t, c)

	stats := c.Stats()
	if stats.Created != 2 || stats.Errors != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if run := store.lastRun(); run == nil || run.Status != models.RunStatusCompleted {
		t.Fatalf("expected completed run, got %+v", store.lastRun())
	}
}

func TestController_StaleRunningFlagCleared(t *testing.T) {
	srv := sourceServer(nil)
	defer srv.Close()

	store := newMemStore()
	store.state = models.RunState{IsRunning: true, Progress: 40}

	c := newTestController(t, store, srv, "")
	if c.IsRunning() {
		t.Fatal("controller must not inherit a stale running flag")
	}
	st, _ := store.LoadRunState(context.Background())
	if st.IsRunning {
		t.Fatal("stale running flag must be cleared in the store")
	}
}

func TestController_RepairRecord(t *testing.T) {
	records := []map[string]any{sourceRecord(7)}
	srv := sourceServer(records)
	defer srv.Close()

	events := make(chan models.SyncEvent, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e models.SyncEvent
		json.NewDecoder(r.Body).Decode(&e)
		events <- e
	}))
	defer hook.Close()

	store := newMemStore()
	c := newTestController(t, store, srv, hook.URL)

	p, err := c.RepairRecord(context.Background(), "7")
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if p.ExternalID != "7" || !store.has("7") {
		t.Fatalf("expected record 7 applied, got %+v", p)
	}

	select {
	case e := <-events:
		if e.Event != "import_completed" || e.Total != 1 || e.Imported != 1 {
			t.Fatalf("unexpected webhook event %+v", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("expected an import_completed delivery")
	}

	if _, err := c.RepairRecord(context.Background(), "404"); err == nil {
		t.Fatal("expected error for unknown record")
	}
}

func TestReconciler_DuplicateIDLastWriteWins(t *testing.T) {
	store := newMemStore()
	logs := &recordingLogger{}
	r := NewReconciler(store, nil, logs)

	result := r.Reconcile(context.Background(), []models.Property{
		{ExternalID: "5", Title: "First Version"},
		{ExternalID: "5", Title: "Second Version"},
	})

	if result.Created != 1 || result.Updated != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if store.count() != 1 {
		t.Fatalf("expected one stored record, got %d", store.count())
	}
	store.mu.Lock()
	title := store.byID[store.byExt["5"]].Title
	store.mu.Unlock()
	if title != "Second Version" {
		t.Fatalf("expected last write to win, got %q", title)
	}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []models.LogEntry
}

func (l *recordingLogger) Log(level models.LogLevel, message string, context map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, models.LogEntry{Level: level, Message: message, Context: context})
}
