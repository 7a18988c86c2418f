package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rollcall/internal/ledger"
	"rollcall/internal/registry"
)

// Postgres implements registry.Repository and ledger.Repository over a
// shared *sql.DB. Day-scoped queries compute the local-day bounds in Go and
// compare against occurred_at, so the database never applies its own
// timezone rules.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates the repository.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}

// --- registry.Repository ---

func (p *Postgres) GetTenant(ctx context.Context, id string) (*registry.Tenant, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, opening_time, created_at
		FROM tenants WHERE id = $1
	`, id)
	var t registry.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.OpeningTime, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (p *Postgres) SaveTenant(ctx context.Context, t registry.Tenant) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, opening_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			opening_time = EXCLUDED.opening_time
	`, t.ID, t.Name, t.OpeningTime)
	return err
}

func (p *Postgres) GetEntity(ctx context.Context, tenantID string, typ registry.EntityType, id string) (*registry.Entity, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT entity_id, name, tenant_id, entity_type, class, subject, roll_no, face_enrolled, created_at
		FROM entities
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
	`, tenantID, typ, id)
	return scanEntity(row)
}

func (p *Postgres) FindByRollNoOrID(ctx context.Context, tenantID, identifier string) (*registry.Entity, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT entity_id, name, tenant_id, entity_type, class, subject, roll_no, face_enrolled, created_at
		FROM entities
		WHERE tenant_id = $1 AND (entity_id = $2 OR roll_no = $2)
		ORDER BY entity_id
		LIMIT 1
	`, tenantID, identifier)
	return scanEntity(row)
}

func scanEntity(row *sql.Row) (*registry.Entity, error) {
	var e registry.Entity
	if err := row.Scan(&e.ID, &e.Name, &e.TenantID, &e.Type, &e.Class, &e.Subject, &e.RollNo, &e.FaceEnrolled, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (p *Postgres) ListEntities(ctx context.Context, tenantID string, typ registry.EntityType) ([]registry.Entity, error) {
	query := `
		SELECT entity_id, name, tenant_id, entity_type, class, subject, roll_no, face_enrolled, created_at
		FROM entities WHERE tenant_id = $1`
	args := []any{tenantID}
	if typ != "" {
		query += ` AND entity_type = $2`
		args = append(args, typ)
	}
	query += ` ORDER BY entity_id`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []registry.Entity
	for rows.Next() {
		var e registry.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.TenantID, &e.Type, &e.Class, &e.Subject, &e.RollNo, &e.FaceEnrolled, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertEntity(ctx context.Context, e registry.Entity) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO entities (tenant_id, entity_type, entity_id, name, class, subject, roll_no, face_enrolled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, entity_type, entity_id) DO UPDATE SET
			name = EXCLUDED.name,
			class = EXCLUDED.class,
			subject = EXCLUDED.subject,
			roll_no = EXCLUDED.roll_no,
			face_enrolled = EXCLUDED.face_enrolled
	`, e.TenantID, e.Type, e.ID, e.Name, e.Class, e.Subject, e.RollNo, e.FaceEnrolled)
	return err
}

// DeleteEntity removes the entity and its events in one transaction.
func (p *Postgres) DeleteEntity(ctx context.Context, tenantID string, typ registry.EntityType, id string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM attendance_events WHERE tenant_id = $1 AND entity_id = $2
	`, tenantID, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM entities WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
	`, tenantID, typ, id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- ledger.Repository ---

const eventColumns = `log_id, tenant_id, entity_id, entity_name, entity_type, occurred_at, status, mode`

func (p *Postgres) InsertEvent(ctx context.Context, evt ledger.Event) (ledger.Event, error) {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO attendance_events (log_id, tenant_id, entity_id, entity_name, entity_type, occurred_at, status, mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, evt.LogID, evt.TenantID, evt.EntityID, evt.EntityName, evt.EntityType, evt.Timestamp, evt.Status, evt.Mode)
	if err != nil {
		return ledger.Event{}, err
	}
	return evt, nil
}

func (p *Postgres) LastEventOnDay(ctx context.Context, tenantID, entityID string, day time.Time) (*ledger.Event, error) {
	from, to := dayBounds(day)
	row := p.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM attendance_events
		WHERE tenant_id = $1 AND entity_id = $2 AND occurred_at >= $3 AND occurred_at < $4
		ORDER BY occurred_at DESC
		LIMIT 1
	`, tenantID, entityID, from, to)
	var evt ledger.Event
	if err := row.Scan(&evt.LogID, &evt.TenantID, &evt.EntityID, &evt.EntityName, &evt.EntityType, &evt.Timestamp, &evt.Status, &evt.Mode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &evt, nil
}

func (p *Postgres) ListByEntity(ctx context.Context, tenantID, entityID string, limit, offset int) ([]ledger.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM attendance_events
		WHERE tenant_id = $1 AND entity_id = $2
		ORDER BY occurred_at DESC
		LIMIT $3 OFFSET $4
	`, tenantID, entityID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func (p *Postgres) ListOnDay(ctx context.Context, tenantID string, day time.Time) ([]ledger.Event, error) {
	from, to := dayBounds(day)
	return p.ListInRange(ctx, tenantID, from, to)
}

func (p *Postgres) ListInRange(ctx context.Context, tenantID string, from, to time.Time) ([]ledger.Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM attendance_events
		WHERE tenant_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at DESC
	`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func (p *Postgres) DeleteByEntity(ctx context.Context, tenantID, entityID string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM attendance_events WHERE tenant_id = $1 AND entity_id = $2
	`, tenantID, entityID)
	return err
}

func collectEvents(rows *sql.Rows) ([]ledger.Event, error) {
	defer rows.Close()
	var out []ledger.Event
	for rows.Next() {
		var evt ledger.Event
		if err := rows.Scan(&evt.LogID, &evt.TenantID, &evt.EntityID, &evt.EntityName, &evt.EntityType, &evt.Timestamp, &evt.Status, &evt.Mode); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}
