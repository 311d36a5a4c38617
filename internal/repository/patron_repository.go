package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/avdeyev/biblio-programs/internal/model"
	"github.com/avdeyev/biblio-programs/internal/utils"
)

// PatronRepo persists patron accounts for the HTTP auth layer. The
// registration core never touches this table; it only ever sees patron
// ids.
type PatronRepo struct{ DB *sql.DB }

func NewPatronRepo(db *sql.DB) *PatronRepo { return &PatronRepo{DB: db} }

// Create inserts an account and returns its ID. The PIN is bcrypt
// hashed before storage.
func (r *PatronRepo) Create(ctx context.Context, barcode, pin, role string, cost int) (uint64, error) {
	barcode = strings.TrimSpace(barcode)
	hash, err := utils.HashPIN(pin, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO patrons (barcode, pin_hash, role) VALUES (?,?,?)",
		barcode, hash, role)
	if err != nil {
		// 1062 = duplicate entry on the unique barcode key
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrBarcodeExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByBarcode fetches an account by its library card barcode.
func (r *PatronRepo) GetByBarcode(ctx context.Context, barcode string) (model.Patron, error) {
	barcode = strings.TrimSpace(barcode)
	var p model.Patron
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,barcode,pin_hash,role,is_active,created_at,updated_at FROM patrons WHERE barcode=? LIMIT 1",
		barcode).Scan(&p.ID, &p.Barcode, &p.PINHash, &p.Role, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetByID fetches an account by id.
func (r *PatronRepo) GetByID(ctx context.Context, id uint64) (model.Patron, error) {
	var p model.Patron
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,barcode,pin_hash,role,is_active,created_at,updated_at FROM patrons WHERE id=? LIMIT 1",
		id).Scan(&p.ID, &p.Barcode, &p.PINHash, &p.Role, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
