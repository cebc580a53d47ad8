package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/erazemk/kmetija/internal/db"
	"github.com/erazemk/kmetija/internal/model"
)

func bodies(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Body
	}
	return out
}

func TestConversationOrderIsSharedByBothSides(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	a := newUser(t, database, "ana")
	b := newUser(t, database, "bor")

	sent := []struct {
		from, to int64
		body     string
	}{
		{a, b, "hi"},
		{b, a, "hello"},
		{a, b, "do you have eggs?"},
		{a, b, "two dozen"},
		{b, a, "yes"},
	}
	for _, s := range sent {
		if _, err := SendMessage(ctx, database, s.from, s.to, s.body); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}

	want := []string{"hi", "hello", "do you have eggs?", "two dozen", "yes"}
	fromA, err := ListConversation(ctx, database, a, b, 0, 0)
	if err != nil {
		t.Fatalf("ListConversation: %v", err)
	}
	fromB, _ := ListConversation(ctx, database, b, a, 0, 0)
	if diff := cmp.Diff(want, bodies(fromA)); diff != "" {
		t.Errorf("A's view mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(bodies(fromA), bodies(fromB)); diff != "" {
		t.Errorf("A and B see different orders (-A +B):\n%s", diff)
	}

	after, _ := ListConversation(ctx, database, b, a, fromA[2].ID, 1)
	if diff := cmp.Diff([]string{"two dozen"}, bodies(after)); diff != "" {
		t.Errorf("paging mismatch (-want +got):\n%s", diff)
	}
}

func TestSendMessageRejections(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	a := newUser(t, database, "ana")

	if _, err := SendMessage(ctx, database, a, a, "me"); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid messaging yourself, got %v", err)
	}
	if _, err := SendMessage(ctx, database, a, 404, "anyone?"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing recipient, got %v", err)
	}
}

func TestConversationsAndRead(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	a := newUser(t, database, "ana")
	b := newUser(t, database, "bor")
	c := newUser(t, database, "cene")

	SendMessage(ctx, database, b, a, "one")
	SendMessage(ctx, database, b, a, "two")
	SendMessage(ctx, database, a, c, "hey cene")

	convs, err := ListConversations(ctx, database, a)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	if convs[0].PartnerID != c || convs[0].Unread != 0 {
		t.Errorf("expected latest conversation with cene and no unread, got %+v", convs[0])
	}
	if convs[1].PartnerID != b || convs[1].Unread != 2 || convs[1].LastMessage.Body != "two" {
		t.Errorf("unexpected conversation with bor: %+v", convs[1])
	}
	if convs[1].PartnerName != "bor" {
		t.Errorf("expected partner name bor, got %q", convs[1].PartnerName)
	}

	n, err := MarkConversationRead(ctx, database, a, b)
	if err != nil {
		t.Fatalf("MarkConversationRead: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 messages marked, got %d", n)
	}
	convs, _ = ListConversations(ctx, database, a)
	if convs[1].Unread != 0 {
		t.Errorf("expected no unread after marking, got %d", convs[1].Unread)
	}
}
