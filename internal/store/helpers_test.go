package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/erazemk/kmetija/internal/model"
)

func newUser(t *testing.T, database *sql.DB, username string) int64 {
	t.Helper()
	u, err := CreateUser(context.Background(), database, username, "hash", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u.ID
}

func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%s): %v", s, err)
	}
	return d
}

func datePtr(t *testing.T, s string) *model.Date {
	t.Helper()
	d := mustDate(t, s)
	return &d
}

// fixToday pins the current day for the duration of the test.
func fixToday(t *testing.T, s string) {
	t.Helper()
	d := mustDate(t, s)
	prev := today
	today = func() model.Date { return d }
	t.Cleanup(func() { today = prev })
}

func newProduct(t *testing.T, database *sql.DB, sellerID int64, in model.ProductInput) *model.Product {
	t.Helper()
	p, err := CreateProduct(context.Background(), database, sellerID, in)
	if err != nil {
		t.Fatalf("CreateProduct(%s): %v", in.Name, err)
	}
	return p
}

func newOffer(t *testing.T, database *sql.DB, productID, buyerID int64, in model.OfferInput) *model.Offer {
	t.Helper()
	o, err := CreateOffer(context.Background(), database, productID, buyerID, in)
	if err != nil {
		t.Fatalf("CreateOffer(%d, %g): %v", productID, in.Quantity, err)
	}
	return o
}
