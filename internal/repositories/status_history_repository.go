package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/lib/pq"

	"roofcrm/internal/models"
	"roofcrm/internal/workflow"
)

type statusHistoryRepository struct {
	db *sql.DB
}

// NewStatusHistoryRepository returns the Postgres StatusStore.
func NewStatusHistoryRepository(db *sql.DB) StatusStore {
	if db == nil {
		log.Fatalf("received nil database connection")
	}
	return &statusHistoryRepository{db: db}
}

func (r *statusHistoryRepository) WithinTx(ctx context.Context, fn func(tx StatusTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&pgStatusTx{tx: tx}); err != nil {
		return translatePQ(err)
	}
	return translatePQ(tx.Commit())
}

func (r *statusHistoryRepository) GetStage(ctx context.Context, leadID int64) (workflow.Stage, error) {
	var s workflow.Stage
	err := r.db.QueryRowContext(ctx,
		`SELECT status, sub_status FROM leads WHERE id=$1 AND deleted_at IS NULL`, leadID,
	).Scan(&s.Status, &s.SubStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrLeadNotFound
	}
	return s, err
}

func (r *statusHistoryRepository) ListTransitions(ctx context.Context, f HistoryFilter) ([]workflow.Transition, error) {
	query, args := buildHistoryQuery(f)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]workflow.Transition, 0)
	for rows.Next() {
		tr, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// buildHistoryQuery renders f as a positional-argument SELECT ordered by id.
func buildHistoryQuery(f HistoryFilter) (string, []interface{}) {
	query := `
		SELECT id, lead_id, from_status, from_sub_status, to_status, to_sub_status,
		       automated, changed_by, metadata, created_at
		FROM lead_status_transitions`

	conditions := []string{}
	args := []interface{}{}
	argID := 1

	if f.LeadID != 0 {
		conditions = append(conditions, fmt.Sprintf("lead_id = $%d", argID))
		args = append(args, f.LeadID)
		argID++
	}
	if f.Automated != nil {
		conditions = append(conditions, fmt.Sprintf("automated = $%d", argID))
		args = append(args, *f.Automated)
		argID++
	}
	if !f.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argID))
		args = append(args, f.From)
		argID++
	}
	if !f.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argID))
		args = append(args, f.To)
		argID++
	}
	if f.AfterID > 0 {
		conditions = append(conditions, fmt.Sprintf("id > $%d", argID))
		args = append(args, f.AfterID)
		argID++
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d", argID)
	args = append(args, f.EffectiveLimit())
	return query, args
}

func scanTransition(rows *sql.Rows) (workflow.Transition, error) {
	var (
		tr                  workflow.Transition
		fromStatus, fromSub sql.NullString
		changedBy           sql.NullInt64
		metaJSON            []byte
	)
	if err := rows.Scan(
		&tr.ID, &tr.LeadID, &fromStatus, &fromSub, &tr.To.Status, &tr.To.SubStatus,
		&tr.Automated, &changedBy, &metaJSON, &tr.CreatedAt,
	); err != nil {
		return tr, err
	}
	if fromStatus.Valid {
		tr.From = &workflow.Stage{
			Status:    workflow.Status(fromStatus.String),
			SubStatus: workflow.SubStatus(fromSub.String),
		}
	}
	if changedBy.Valid {
		id := int(changedBy.Int64)
		tr.ChangedBy = &id
	}
	tr.Metadata = map[string]any{}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &tr.Metadata); err != nil {
			return tr, fmt.Errorf("transition %d metadata: %w", tr.ID, err)
		}
	}
	return tr, nil
}

type pgStatusTx struct {
	tx *sql.Tx
}

func (t *pgStatusTx) LockStage(ctx context.Context, leadID int64) (workflow.Stage, error) {
	var s workflow.Stage
	err := t.tx.QueryRowContext(ctx, `
		SELECT status, sub_status
		FROM leads
		WHERE id=$1 AND deleted_at IS NULL
		FOR UPDATE
	`, leadID).Scan(&s.Status, &s.SubStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrLeadNotFound
	}
	return s, err
}

func (t *pgStatusTx) UpdateStage(ctx context.Context, leadID int64, from, to workflow.Stage) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE leads
		SET status=$1, sub_status=$2, updated_at=NOW()
		WHERE id=$3 AND status=$4 AND sub_status=$5
	`, to.Status, to.SubStatus, leadID, from.Status, from.SubStatus)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrConcurrentModification
	}
	return nil
}

func (t *pgStatusTx) InsertTransition(ctx context.Context, tr *workflow.Transition) error {
	meta := tr.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal transition metadata: %w", err)
	}

	var fromStatus, fromSub sql.NullString
	if tr.From != nil {
		fromStatus = sql.NullString{String: string(tr.From.Status), Valid: true}
		fromSub = sql.NullString{String: string(tr.From.SubStatus), Valid: true}
	}
	var changedBy sql.NullInt64
	if tr.ChangedBy != nil {
		changedBy = sql.NullInt64{Int64: int64(*tr.ChangedBy), Valid: true}
	}

	return t.tx.QueryRowContext(ctx, `
		INSERT INTO lead_status_transitions (
			lead_id, from_status, from_sub_status, to_status, to_sub_status,
			automated, changed_by, metadata, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb, clock_timestamp())
		RETURNING id, created_at`,
		tr.LeadID, fromStatus, fromSub, tr.To.Status, tr.To.SubStatus,
		tr.Automated, changedBy, string(metaJSON),
	).Scan(&tr.ID, &tr.CreatedAt)
}

func (t *pgStatusTx) InsertLead(ctx context.Context, lead *models.Leads) error {
	return t.tx.QueryRowContext(ctx, `
		INSERT INTO leads (title, description, address, owner_id, status, sub_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		lead.Title, lead.Description, lead.Address, lead.OwnerID, lead.Status, lead.SubStatus,
	).Scan(&lead.ID, &lead.CreatedAt, &lead.UpdatedAt)
}

// translatePQ maps Postgres serialization and deadlock failures onto
// ErrConcurrentModification so callers can retry the whole cycle.
func translatePQ(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ErrConcurrentModification, pqErr.Message)
		}
	}
	return err
}
