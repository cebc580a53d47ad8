package model

import "time"

// Object is a stored file in a storage bucket.
type Object struct {
	Bucket    string    `json:"bucket"`
	Name      string    `json:"name"`
	MIME      string    `json:"mime"`
	Size      int64     `json:"size"`
	OwnerID   int64     `json:"owner_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}
