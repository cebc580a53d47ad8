package model

import "time"

// Profile holds the public farm details of a user.
type Profile struct {
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	FarmName    string    `json:"farm_name,omitempty"`
	Location    string    `json:"location,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfileInput is the editable part of a profile.
type ProfileInput struct {
	DisplayName string `json:"display_name" validate:"max=100"`
	FarmName    string `json:"farm_name" validate:"max=200"`
	Location    string `json:"location" validate:"max=200"`
	Phone       string `json:"phone" validate:"max=32"`
	Email       string `json:"email" validate:"omitempty,email,max=254"`
	Bio         string `json:"bio" validate:"max=2000"`
}
