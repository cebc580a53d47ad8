package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/kmetija/internal/model"
)

// PutObject stores an object's bytes under (bucket, name).
func PutObject(ctx context.Context, db *sql.DB, obj model.Object, data []byte) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO objects (bucket, name, mime, size, data, owner_id) VALUES (?, ?, ?, ?, ?, ?)`,
		obj.Bucket, obj.Name, obj.MIME, len(data), data, obj.OwnerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return conflict("object %s/%s already exists", obj.Bucket, obj.Name)
		}
		return fmt.Errorf("storing object: %w", err)
	}
	return nil
}

// GetObject returns an object and its bytes, or nil if it doesn't exist.
func GetObject(ctx context.Context, db *sql.DB, bucket, name string) (*model.Object, []byte, error) {
	obj := &model.Object{}
	var data []byte
	err := db.QueryRowContext(ctx,
		`SELECT bucket, name, mime, size, data, owner_id, created_at FROM objects WHERE bucket = ? AND name = ?`,
		bucket, name,
	).Scan(&obj.Bucket, &obj.Name, &obj.MIME, &obj.Size, &data, &obj.OwnerID, &obj.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("getting object: %w", err)
	}
	return obj, data, nil
}

// DeleteObject removes an object.
func DeleteObject(ctx context.Context, db *sql.DB, bucket, name string) error {
	n, err := affected(db.ExecContext(ctx,
		`DELETE FROM objects WHERE bucket = ? AND name = ?`, bucket, name,
	))
	if err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}
	if n == 0 {
		return notFound("object not found")
	}
	return nil
}
