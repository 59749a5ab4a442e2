package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"propsyncd/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS properties (
		id INTEGER PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		description TEXT,
		price TEXT,
		location TEXT,
		city TEXT,
		area TEXT,
		type TEXT,
		status TEXT,
		attributes JSON,
		features JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS property_tags (
		property_id INTEGER NOT NULL,
		taxonomy TEXT NOT NULL,
		term TEXT NOT NULL,
		PRIMARY KEY (property_id, taxonomy),
		FOREIGN KEY (property_id) REFERENCES properties(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS attachments (
		id INTEGER PRIMARY KEY,
		property_id INTEGER NOT NULL,
		filename TEXT,
		content_type TEXT,
		size INTEGER,
		data BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (property_id) REFERENCES properties(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS property_images (
		property_id INTEGER NOT NULL,
		attachment_id INTEGER NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (property_id, attachment_id),
		FOREIGN KEY (property_id) REFERENCES properties(id) ON DELETE CASCADE,
		FOREIGN KEY (attachment_id) REFERENCES attachments(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS run_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		is_running BOOLEAN NOT NULL DEFAULT FALSE,
		progress REAL NOT NULL DEFAULT 0,
		last_run_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS sync_runs (
		id INTEGER PRIMARY KEY,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		total INTEGER DEFAULT 0,
		created INTEGER DEFAULT 0,
		updated INTEGER DEFAULT 0,
		deleted INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_properties_external ON properties(external_id);
	CREATE INDEX IF NOT EXISTS idx_attachments_property ON attachments(property_id);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON sync_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) LookupByExternalID(ctx context.Context, externalID string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM properties WHERE external_id = ?`, externalID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]models.StoreRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, external_id FROM properties`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.StoreRecord
	for rows.Next() {
		var rec models.StoreRecord
		if err := rows.Scan(&rec.LocalID, &rec.ExternalID); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Create(ctx context.Context, p *models.Property) (int64, error) {
	attrs, _ := json.Marshal(p.Attributes)
	features, _ := json.Marshal(p.Features)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO properties (external_id, title, description, price, location, city, area, type, status, attributes, features)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ExternalID, p.Title, p.Description, p.Price, p.Location, p.City, p.Area,
		p.Type, p.Status, string(attrs), string(features))
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := s.setTags(ctx, id, p); err != nil {
		return id, err
	}
	return id, nil
}

func (s *SQLiteStore) Update(ctx context.Context, localID int64, p *models.Property) error {
	attrs, _ := json.Marshal(p.Attributes)
	features, _ := json.Marshal(p.Features)

	_, err := s.db.ExecContext(ctx, `
		UPDATE properties SET title = ?, description = ?, price = ?, location = ?,
			city = ?, area = ?, type = ?, status = ?, attributes = ?, features = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		p.Title, p.Description, p.Price, p.Location, p.City, p.Area,
		p.Type, p.Status, string(attrs), string(features), localID)
	if err != nil {
		return err
	}
	return s.setTags(ctx, localID, p)
}

func (s *SQLiteStore) setTags(ctx context.Context, localID int64, p *models.Property) error {
	tags := map[string]string{
		"property-type":   p.Type,
		"property-status": p.Status,
	}
	for taxonomy, term := range tags {
		if term == "" {
			_, err := s.db.ExecContext(ctx,
				`DELETE FROM property_tags WHERE property_id = ? AND taxonomy = ?`, localID, taxonomy)
			if err != nil {
				return err
			}
			continue
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO property_tags (property_id, taxonomy, term) VALUES (?, ?, ?)
			ON CONFLICT(property_id, taxonomy) DO UPDATE SET term = excluded.term`,
			localID, taxonomy, term)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, localID int64) error {
	// Cascades handle tags, attachments, and image links.
	_, err := s.db.ExecContext(ctx, `DELETE FROM properties WHERE id = ?`, localID)
	return err
}

func (s *SQLiteStore) AttachImage(ctx context.Context, localID int64, filename string, data []byte, contentType string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (property_id, filename, content_type, size, data)
		VALUES (?, ?, ?, ?, ?)`,
		localID, filename, contentType, len(data), data)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) LinkImages(ctx context.Context, localID int64, handles []int64) error {
	for i, handle := range handles {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO property_images (property_id, attachment_id, position)
			VALUES (?, ?, ?)
			ON CONFLICT(property_id, attachment_id) DO UPDATE SET position = excluded.position`,
			localID, handle, i)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) ClearImages(ctx context.Context, localID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM property_images WHERE property_id = ?`, localID)
	return err
}

func (s *SQLiteStore) SetPrimaryImage(ctx context.Context, localID int64, handle int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE property_images SET is_primary = FALSE WHERE property_id = ?`, localID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE property_images SET is_primary = TRUE
		WHERE property_id = ? AND attachment_id = ?`, localID, handle)
	return err
}

func (s *SQLiteStore) SaveRunState(ctx context.Context, st *models.RunState) error {
	var lastRun *time.Time
	if st.LastRunAt != nil {
		lastRun = st.LastRunAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_state (id, is_running, progress, last_run_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_running = excluded.is_running,
			progress = excluded.progress,
			last_run_at = COALESCE(excluded.last_run_at, run_state.last_run_at)`,
		st.IsRunning, st.Progress, lastRun)
	return err
}

func (s *SQLiteStore) LoadRunState(ctx context.Context) (*models.RunState, error) {
	var st models.RunState
	var lastRun sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT is_running, progress, last_run_at FROM run_state WHERE id = 1`).
		Scan(&st.IsRunning, &st.Progress, &lastRun)
	if err == sql.ErrNoRows {
		return &models.RunState{}, nil
	}
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		t := lastRun.Time
		st.LastRunAt = &t
	}
	return &st, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.SyncRun) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (started_at, status, total, created, updated, deleted, errors)
		VALUES (?, ?, 0, 0, 0, 0, 0)`,
		run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *models.SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs SET finished_at = ?, status = ?, total = ?,
			created = ?, updated = ?, deleted = ?, errors = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.Total,
		run.Created, run.Updated, run.Deleted, run.Errors, run.ID)
	return err
}
