package store

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/erazemk/kmetija/internal/db"
	"github.com/erazemk/kmetija/internal/model"
)

func TestObjects(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	owner := newUser(t, database, "ana")

	obj := model.Object{Bucket: "avatars", Name: "a.jpg", MIME: "image/jpeg", OwnerID: owner}
	data := []byte{0xff, 0xd8, 0xff, 0xd9}
	if err := PutObject(ctx, database, obj, data); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := PutObject(ctx, database, obj, data); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict on duplicate name, got %v", err)
	}

	got, gotData, err := GetObject(ctx, database, "avatars", "a.jpg")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if got == nil || got.Size != 4 || got.MIME != "image/jpeg" || !bytes.Equal(gotData, data) {
		t.Fatalf("unexpected object: %+v %v", got, gotData)
	}

	missing, _, err := GetObject(ctx, database, "inventory-images", "a.jpg")
	if err != nil || missing != nil {
		t.Errorf("expected nil for object in other bucket, got %+v, %v", missing, err)
	}

	if err := DeleteObject(ctx, database, "avatars", "a.jpg"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if err := DeleteObject(ctx, database, "avatars", "a.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}
