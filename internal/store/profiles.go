package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/kmetija/internal/model"
)

// GetProfile returns the profile of an active user.
func GetProfile(ctx context.Context, db *sql.DB, userID int64) (*model.Profile, error) {
	p := &model.Profile{}
	err := db.QueryRowContext(ctx,
		`SELECT u.id, u.username, p.display_name, p.farm_name, p.location, p.phone,
		        p.email, p.bio, p.avatar_url, p.updated_at
		 FROM users u
		 JOIN profiles p ON p.user_id = u.id
		 WHERE u.id = ? AND u.deleted_at IS NULL`, userID,
	).Scan(&p.UserID, &p.Username, &p.DisplayName, &p.FarmName, &p.Location, &p.Phone,
		&p.Email, &p.Bio, &p.AvatarURL, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return p, nil
}

// UpdateProfile replaces the editable fields of a user's profile.
func UpdateProfile(ctx context.Context, db *sql.DB, userID int64, in model.ProfileInput) (*model.Profile, error) {
	if err := upsertProfile(ctx, db, userID, in); err != nil {
		return nil, err
	}
	return GetProfile(ctx, db, userID)
}

func upsertProfile(ctx context.Context, q querier, userID int64, in model.ProfileInput) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO profiles (user_id, display_name, farm_name, location, phone, email, bio)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		     display_name = excluded.display_name,
		     farm_name    = excluded.farm_name,
		     location     = excluded.location,
		     phone        = excluded.phone,
		     email        = excluded.email,
		     bio          = excluded.bio,
		     updated_at   = CURRENT_TIMESTAMP`,
		userID, in.DisplayName, in.FarmName, in.Location, in.Phone, in.Email, in.Bio,
	)
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}

// SetAvatar sets the avatar URL of a profile.
func SetAvatar(ctx context.Context, db *sql.DB, userID int64, url string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE profiles SET avatar_url = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
		url, userID,
	)
	if err != nil {
		return fmt.Errorf("setting avatar: %w", err)
	}
	return nil
}

// displayName is the expression used for a user's public name in joins.
const displayName = `COALESCE(NULLIF(%[1]s.display_name, ''), %[2]s.username)`

func nameOf(profileAlias, userAlias string) string {
	return fmt.Sprintf(displayName, profileAlias, userAlias)
}
