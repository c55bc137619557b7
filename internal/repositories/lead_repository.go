package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"roofcrm/internal/models"
)

// LeadRepository reads and edits lead records. It never writes status or
// sub_status; those belong to StatusStore.
type LeadRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Leads, error)
	Update(ctx context.Context, lead *models.Leads) error
	Delete(ctx context.Context, id int64) error
	ListPaginated(ctx context.Context, limit, offset int) ([]*models.Leads, error)
	ListByOwner(ctx context.Context, ownerID, limit, offset int) ([]*models.Leads, error)
	FilterLeads(ctx context.Context, f models.LeadFilter) ([]*models.Leads, error)
	UpdateOwner(ctx context.Context, id int64, ownerID int) error
}

type leadRepository struct {
	db *sql.DB
}

func NewLeadRepository(db *sql.DB) LeadRepository {
	if db == nil {
		log.Fatalf("received nil database connection")
	}
	return &leadRepository{db: db}
}

const leadColumns = `id, title, description, address, owner_id, status, sub_status, created_at, updated_at`

func (r *leadRepository) Update(ctx context.Context, lead *models.Leads) error {
	const query = `
		UPDATE leads
		SET title=$1, description=$2, address=$3, owner_id=$4, updated_at=NOW()
		WHERE id=$5 AND deleted_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, lead.Title, lead.Description, lead.Address, lead.OwnerID, lead.ID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (r *leadRepository) GetByID(ctx context.Context, id int64) (*models.Leads, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id=$1 AND deleted_at IS NULL`
	row := r.db.QueryRowContext(ctx, query, id)
	lead := &models.Leads{}
	if err := scanLead(row, lead); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}
	return lead, nil
}

// Delete hides the lead; its transition history stays intact.
func (r *leadRepository) Delete(ctx context.Context, id int64) error {
	const query = `UPDATE leads SET deleted_at=NOW() WHERE id=$1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (r *leadRepository) UpdateOwner(ctx context.Context, id int64, ownerID int) error {
	const query = `UPDATE leads SET owner_id=$1, updated_at=NOW() WHERE id=$2 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, ownerID, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (r *leadRepository) FilterLeads(ctx context.Context, f models.LeadFilter) ([]*models.Leads, error) {
	sortBy := f.SortBy
	allowed := map[string]bool{"created_at": true, "updated_at": true, "owner_id": true, "status": true}
	if !allowed[sortBy] {
		sortBy = "created_at"
	}
	order := f.Order
	if order != "asc" && order != "desc" {
		order = "desc"
	}

	query := "SELECT " + leadColumns + " FROM leads WHERE deleted_at IS NULL"
	args := []interface{}{}
	i := 1

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", i)
		args = append(args, f.Status)
		i++
	}
	if f.SubStatus != "" {
		query += fmt.Sprintf(" AND sub_status = $%d", i)
		args = append(args, f.SubStatus)
		i++
	}
	if f.OwnerID > 0 {
		query += fmt.Sprintf(" AND owner_id = $%d", i)
		args = append(args, f.OwnerID)
		i++
	}

	query += fmt.Sprintf(" ORDER BY %s %s LIMIT $%d OFFSET $%d", sortBy, order, i, i+1)
	args = append(args, f.Limit, f.Offset)

	return r.query(ctx, query, args...)
}

func (r *leadRepository) ListPaginated(ctx context.Context, limit, offset int) ([]*models.Leads, error) {
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	return r.query(ctx, query, limit, offset)
}

func (r *leadRepository) ListByOwner(ctx context.Context, ownerID, limit, offset int) ([]*models.Leads, error) {
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.query(ctx, query, ownerID, limit, offset)
}

func (r *leadRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.Leads, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.Leads, 0)
	for rows.Next() {
		var l models.Leads
		if err := scanLead(rows, &l); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(row rowScanner, l *models.Leads) error {
	return row.Scan(&l.ID, &l.Title, &l.Description, &l.Address, &l.OwnerID,
		&l.Status, &l.SubStatus, &l.CreatedAt, &l.UpdatedAt)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeadNotFound
	}
	return nil
}
