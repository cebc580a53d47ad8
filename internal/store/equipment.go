package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/kmetija/internal/model"
)

var equipmentColumns = `e.id, e.owner_id, e.name, e.category, e.description, e.location, e.image_url,
	e.available, e.status, e.created_at, e.updated_at, e.deleted_at, ` + nameOf("op", "ou") + ` AS owner_name`

const equipmentJoins = `FROM equipment e
	JOIN users ou ON ou.id = e.owner_id
	LEFT JOIN profiles op ON op.user_id = e.owner_id`

func scanEquipment(row interface{ Scan(...any) error }) (*model.Equipment, error) {
	e := &model.Equipment{}
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Name, &e.Category, &e.Description, &e.Location, &e.ImageURL,
		&e.Available, &e.Status, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt, &e.OwnerName); err != nil {
		return nil, err
	}
	return e, nil
}

// EquipmentFilter narrows ListEquipment.
type EquipmentFilter struct {
	OwnerID  int64
	Category string
	Status   string
}

// CreateEquipment lists a piece of equipment for lending.
func CreateEquipment(ctx context.Context, db *sql.DB, ownerID int64, in model.EquipmentInput) (*model.Equipment, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO equipment (owner_id, name, category, description, location) VALUES (?, ?, ?, ?, ?)`,
		ownerID, in.Name, in.Category, in.Description, in.Location,
	)
	if err != nil {
		return nil, fmt.Errorf("creating equipment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting equipment id: %w", err)
	}
	return GetEquipment(ctx, db, id)
}

// GetEquipment returns a listing by ID, including soft-deleted ones.
func GetEquipment(ctx context.Context, db *sql.DB, id int64) (*model.Equipment, error) {
	e, err := scanEquipment(db.QueryRowContext(ctx,
		`SELECT `+equipmentColumns+` `+equipmentJoins+` WHERE e.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting equipment: %w", err)
	}
	return e, nil
}

// ListEquipment returns non-deleted listings matching the filter.
func ListEquipment(ctx context.Context, db *sql.DB, f EquipmentFilter) ([]model.Equipment, error) {
	query := `SELECT ` + equipmentColumns + ` ` + equipmentJoins + ` WHERE e.deleted_at IS NULL`
	var args []any
	if f.OwnerID > 0 {
		query += ` AND e.owner_id = ?`
		args = append(args, f.OwnerID)
	}
	if f.Category != "" {
		query += ` AND e.category = ?`
		args = append(args, f.Category)
	}
	if f.Status != "" {
		query += ` AND e.status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY e.created_at DESC, e.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing equipment: %w", err)
	}
	defer rows.Close()

	var list []model.Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning equipment: %w", err)
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// UpdateEquipment replaces a listing's descriptive fields. Status is left alone.
func UpdateEquipment(ctx context.Context, db *sql.DB, id, ownerID int64, in model.EquipmentInput) (*model.Equipment, error) {
	n, err := affected(db.ExecContext(ctx,
		`UPDATE equipment SET name = ?, category = ?, description = ?, location = ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`,
		in.Name, in.Category, in.Description, in.Location, id, ownerID,
	))
	if err != nil {
		return nil, fmt.Errorf("updating equipment: %w", err)
	}
	if n == 0 {
		return nil, notFound("equipment not found")
	}
	return GetEquipment(ctx, db, id)
}

// DeleteEquipment soft-deletes an owner's listing. Listings that are
// requested or lent out cannot be deleted.
func DeleteEquipment(ctx context.Context, db *sql.DB, id, ownerID int64) error {
	n, err := affected(db.ExecContext(ctx,
		`UPDATE equipment SET deleted_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND owner_id = ? AND deleted_at IS NULL AND status = 'available'`,
		id, ownerID,
	))
	if err != nil {
		return fmt.Errorf("deleting equipment: %w", err)
	}
	if n > 0 {
		return nil
	}

	e, err := GetEquipment(ctx, db, id)
	if err != nil {
		return err
	}
	if e == nil || e.DeletedAt != nil || e.OwnerID != ownerID {
		return notFound("equipment not found")
	}
	return conflict("equipment is %s", e.Status)
}

// SetEquipmentImage sets the image URL of an owner's listing.
func SetEquipmentImage(ctx context.Context, db *sql.DB, id, ownerID int64, url string) error {
	n, err := affected(db.ExecContext(ctx,
		`UPDATE equipment SET image_url = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`,
		url, id, ownerID,
	))
	if err != nil {
		return fmt.Errorf("setting equipment image: %w", err)
	}
	if n == 0 {
		return notFound("equipment not found")
	}
	return nil
}
