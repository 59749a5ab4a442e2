package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"propsyncd/models"
)

// PostgresStore is the pgx-backed PropertyStore, selected with
// DB_DRIVER=postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS properties (
		id BIGSERIAL PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		description TEXT,
		price TEXT,
		location TEXT,
		city TEXT,
		area TEXT,
		type TEXT,
		status TEXT,
		attributes JSONB,
		features JSONB,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS property_tags (
		property_id BIGINT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
		taxonomy TEXT NOT NULL,
		term TEXT NOT NULL,
		PRIMARY KEY (property_id, taxonomy)
	);

	CREATE TABLE IF NOT EXISTS attachments (
		id BIGSERIAL PRIMARY KEY,
		property_id BIGINT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
		filename TEXT,
		content_type TEXT,
		size BIGINT,
		data BYTEA,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS property_images (
		property_id BIGINT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
		attachment_id BIGINT NOT NULL REFERENCES attachments(id) ON DELETE CASCADE,
		position INT NOT NULL DEFAULT 0,
		is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (property_id, attachment_id)
	);

	CREATE TABLE IF NOT EXISTS run_state (
		id INT PRIMARY KEY CHECK (id = 1),
		is_running BOOLEAN NOT NULL DEFAULT FALSE,
		progress DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_run_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS sync_runs (
		id BIGSERIAL PRIMARY KEY,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		status TEXT,
		total INT DEFAULT 0,
		created INT DEFAULT 0,
		updated INT DEFAULT 0,
		deleted INT DEFAULT 0,
		errors INT DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_attachments_property ON attachments(property_id);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON sync_runs(status, started_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) LookupByExternalID(ctx context.Context, externalID string) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM properties WHERE external_id = $1`, externalID).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]models.StoreRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, external_id FROM properties`)
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

func (s *PostgresStore) Create(ctx context.Context, p *models.Property) (int64, error) {
	attrs, _ := json.Marshal(p.Attributes)
	features, _ := json.Marshal(p.Features)

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO properties (external_id, title, description, price, location, city, area, type, status, attributes, features)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		p.ExternalID, p.Title, p.Description, p.Price, p.Location, p.City, p.Area,
		p.Type, p.Status, attrs, features).Scan(&id)
	if err != nil {
		return 0, err
	}

	if err := s.setTags(ctx, id, p); err != nil {
		return id, err
	}
	return id, nil
}

func (s *PostgresStore) Update(ctx context.Context, localID int64, p *models.Property) error {
	attrs, _ := json.Marshal(p.Attributes)
	features, _ := json.Marshal(p.Features)

	_, err := s.pool.Exec(ctx, `
		UPDATE properties SET title = $1, description = $2, price = $3, location = $4,
			city = $5, area = $6, type = $7, status = $8, attributes = $9, features = $10,
			updated_at = NOW()
		WHERE id = $11`,
		p.Title, p.Description, p.Price, p.Location, p.City, p.Area,
		p.Type, p.Status, attrs, features, localID)
	if err != nil {
		return err
	}
	return s.setTags(ctx, localID, p)
}

func (s *PostgresStore) setTags(ctx context.Context, localID int64, p *models.Property) error {
	tags := map[string]string{
		"property-type":   p.Type,
		"property-status": p.Status,
	}
	for taxonomy, term := range tags {
		if term == "" {
			if _, err := s.pool.Exec(ctx,
				`DELETE FROM property_tags WHERE property_id = $1 AND taxonomy = $2`,
				localID, taxonomy); err != nil {
				return err
			}
			continue
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO property_tags (property_id, taxonomy, term) VALUES ($1, $2, $3)
			ON CONFLICT (property_id, taxonomy) DO UPDATE SET term = EXCLUDED.term`,
			localID, taxonomy, term)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, localID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM properties WHERE id = $1`, localID)
	return err
}

func (s *PostgresStore) AttachImage(ctx context.Context, localID int64, filename string, data []byte, contentType string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO attachments (property_id, filename, content_type, size, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		localID, filename, contentType, len(data), data).Scan(&id)
	return id, err
}

func (s *PostgresStore) LinkImages(ctx context.Context, localID int64, handles []int64) error {
	for i, handle := range handles {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO property_images (property_id, attachment_id, position)
			VALUES ($1, $2, $3)
			ON CONFLICT (property_id, attachment_id) DO UPDATE SET position = EXCLUDED.position`,
			localID, handle, i)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) ClearImages(ctx context.Context, localID int64) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM property_images WHERE property_id = $1`, localID)
	return err
}

func (s *PostgresStore) SetPrimaryImage(ctx context.Context, localID int64, handle int64) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE property_images SET is_primary = FALSE WHERE property_id = $1`, localID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE property_images SET is_primary = TRUE
		WHERE property_id = $1 AND attachment_id = $2`, localID, handle)
	return err
}

func (s *PostgresStore) SaveRunState(ctx context.Context, st *models.RunState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_state (id, is_running, progress, last_run_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			is_running = EXCLUDED.is_running,
			progress = EXCLUDED.progress,
			last_run_at = COALESCE(EXCLUDED.last_run_at, run_state.last_run_at)`,
		st.IsRunning, st.Progress, st.LastRunAt)
	return err
}

func (s *PostgresStore) LoadRunState(ctx context.Context) (*models.RunState, error) {
	var st models.RunState
	var lastRun *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT is_running, progress, last_run_at FROM run_state WHERE id = 1`).
		Scan(&st.IsRunning, &st.Progress, &lastRun)
	if err == pgx.ErrNoRows {
		return &models.RunState{}, nil
	}
	if err != nil {
		return nil, err
	}
	st.LastRunAt = lastRun
	return &st, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.SyncRun) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sync_runs (started_at, status)
		VALUES ($1, $2)
		RETURNING id`,
		run.StartedAt, run.Status).Scan(&id)
	return id, err
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.SyncRun) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sync_runs SET finished_at = $1, status = $2, total = $3,
			created = $4, updated = $5, deleted = $6, errors = $7
		WHERE id = $8`,
		run.FinishedAt, run.Status, run.Total,
		run.Created, run.Updated, run.Deleted, run.Errors, run.ID)
	return err
}
