// Package storage keeps uploaded images in named buckets backed by the
// database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/erazemk/kmetija/internal/imaging"
	"github.com/erazemk/kmetija/internal/model"
	"github.com/erazemk/kmetija/internal/store"
)

// Buckets.
const (
	BucketInventory   = "inventory-images"
	BucketEquipment   = "equipment-images"
	BucketMarketplace = "marketplace-images"
	BucketAvatars     = "avatars"
)

// URLPrefix is the path public objects are served under.
const URLPrefix = "/storage/"

var buckets = map[string]bool{
	BucketInventory:   true,
	BucketEquipment:   true,
	BucketMarketplace: true,
	BucketAvatars:     true,
}

// ErrUnknownBucket is returned for bucket names outside the fixed set.
var ErrUnknownBucket = errors.New("unknown bucket")

// ValidBucket reports whether name is a known bucket.
func ValidBucket(name string) bool {
	return buckets[name]
}

// Service uploads and serves objects.
type Service struct {
	DB     *sql.DB
	Images imaging.Processor
}

// URL returns the public URL of an object.
func URL(bucket, name string) string {
	return URLPrefix + bucket + "/" + name
}

// Upload processes an image and stores it under a fresh name in bucket.
func (s *Service) Upload(ctx context.Context, bucket string, ownerID int64, r io.Reader) (*model.Object, error) {
	if !ValidBucket(bucket) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}

	img, err := s.Images.Process(r)
	if err != nil {
		return nil, err
	}

	obj := model.Object{
		Bucket:  bucket,
		Name:    uuid.NewString() + ".jpg",
		MIME:    img.MIME,
		Size:    int64(len(img.Data)),
		OwnerID: ownerID,
	}
	if err := store.PutObject(ctx, s.DB, obj, img.Data); err != nil {
		return nil, err
	}
	obj.URL = URL(bucket, obj.Name)
	return &obj, nil
}

// Open returns an object and its bytes, or nil if it doesn't exist.
func (s *Service) Open(ctx context.Context, bucket, name string) (*model.Object, []byte, error) {
	if !ValidBucket(bucket) {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	obj, data, err := store.GetObject(ctx, s.DB, bucket, name)
	if err != nil || obj == nil {
		return nil, nil, err
	}
	obj.URL = URL(bucket, name)
	return obj, data, nil
}

// Remove deletes the object a public URL points at. URLs that don't point
// into storage and objects that are already gone are ignored.
func (s *Service) Remove(ctx context.Context, url string) error {
	bucket, name, ok := ParseURL(url)
	if !ok {
		return nil
	}
	err := store.DeleteObject(ctx, s.DB, bucket, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// ParseURL splits a public object URL into bucket and name.
func ParseURL(url string) (bucket, name string, ok bool) {
	rest, found := strings.CutPrefix(url, URLPrefix)
	if !found {
		return "", "", false
	}
	bucket, name, found = strings.Cut(rest, "/")
	if !found || name == "" || strings.Contains(name, "/") || !ValidBucket(bucket) {
		return "", "", false
	}
	return bucket, name, true
}
