package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/kmetija/internal/model"
)

const userColumns = `id, username, password_hash, role, created_at, deleted_at`

// CreateUser creates a new user together with an empty profile.
func CreateUser(ctx context.Context, db *sql.DB, username, passwordHash, role string) (*model.User, error) {
	return CreateUserWithProfile(ctx, db, username, passwordHash, role, model.ProfileInput{})
}

// CreateUserWithProfile creates a user and its profile in one transaction.
func CreateUserWithProfile(ctx context.Context, db *sql.DB, username, passwordHash, role string, profile model.ProfileInput) (*model.User, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var taken int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ? AND deleted_at IS NULL`, username,
	).Scan(&taken); err != nil {
		return nil, fmt.Errorf("checking username: %w", err)
	}
	if taken > 0 {
		return nil, conflict("username %q already exists", username)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)`,
		username, passwordHash, role,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	if err := upsertProfile(ctx, tx, id, profile); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing user: %w", err)
	}

	return GetUser(ctx, db, id)
}

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.DeletedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the active user with the given username.
func GetUserByUsername(ctx context.Context, db *sql.DB, username string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`, username,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-deleted users.
func ListUsers(ctx context.Context, db *sql.DB) ([]model.User, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUser updates a user's role.
func UpdateUser(ctx context.Context, db *sql.DB, id int64, role string) error {
	n, err := affected(db.ExecContext(ctx,
		`UPDATE users SET role = ? WHERE id = ? AND deleted_at IS NULL`,
		role, id,
	))
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if n == 0 {
		return notFound("user not found")
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sql.DB, id int64, passwordHash string) error {
	n, err := affected(db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	))
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	if n == 0 {
		return notFound("user not found")
	}
	return nil
}

// DeleteUser soft-deletes a user. Users with equipment out on loan, or
// borrowing someone else's, cannot be deleted. Their listings go with them:
// products and equipment are soft-deleted, pending offers and requests on
// them are rejected or declined, and the user's own pending offers and
// requests are cancelled, all in one transaction.
func DeleteUser(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var open int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM borrow_requests br
		 JOIN equipment e ON e.id = br.equipment_id
		 WHERE br.status = 'accepted' AND (br.borrower_id = ? OR e.owner_id = ?)`, id, id,
	).Scan(&open)
	if err != nil {
		return fmt.Errorf("checking open loans: %w", err)
	}
	if open > 0 {
		return conflict("user still has %d open loan(s)", open)
	}

	n, err := affected(tx.ExecContext(ctx,
		`UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	))
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n == 0 {
		return notFound("user not found")
	}

	for _, step := range []struct {
		what  string
		query string
	}{
		{"rejecting offers on products", `UPDATE offers SET status = 'rejected', updated_at = CURRENT_TIMESTAMP
			 WHERE status = 'pending' AND product_id IN (SELECT id FROM products WHERE seller_id = ?)`},
		{"cancelling offers", `UPDATE offers SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
			 WHERE status = 'pending' AND buyer_id = ?`},
		{"withdrawing products", `UPDATE products SET status = 'withdrawn', deleted_at = CURRENT_TIMESTAMP,
			     updated_at = CURRENT_TIMESTAMP
			 WHERE seller_id = ? AND deleted_at IS NULL`},
		{"declining borrow requests", `UPDATE borrow_requests SET status = 'declined', decided_at = CURRENT_TIMESTAMP,
			     updated_at = CURRENT_TIMESTAMP
			 WHERE status = 'pending' AND equipment_id IN (SELECT id FROM equipment WHERE owner_id = ?)`},
		{"releasing requested equipment", `UPDATE equipment SET status = 'available', available = 1,
			     updated_at = CURRENT_TIMESTAMP
			 WHERE id IN (SELECT equipment_id FROM borrow_requests WHERE status = 'pending' AND borrower_id = ?)`},
		{"cancelling borrow requests", `UPDATE borrow_requests SET status = 'cancelled', decided_at = CURRENT_TIMESTAMP,
			     updated_at = CURRENT_TIMESTAMP
			 WHERE status = 'pending' AND borrower_id = ?`},
		{"removing equipment", `UPDATE equipment SET status = 'available', available = 1,
			     deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
			 WHERE owner_id = ? AND deleted_at IS NULL`},
	} {
		if _, err := tx.ExecContext(ctx, step.query, id); err != nil {
			return fmt.Errorf("%s: %w", step.what, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user deletion: %w", err)
	}
	return nil
}
