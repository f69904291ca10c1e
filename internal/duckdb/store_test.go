package duckdb

import (
	"context"
	"errors"
	"testing"

	"github.com/slipmail/slipmail/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore(\"\") failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r, err := store.UpsertRecipient(ctx, "  Ann@Co.com ", "Ann Smith")
	if err != nil {
		t.Fatalf("UpsertRecipient: %v", err)
	}
	if r.Email != "ann@co.com" {
		t.Errorf("Email = %q, want canonical ann@co.com", r.Email)
	}

	got, err := store.Lookup(ctx, "ANN@co.com")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.DisplayName != "Ann Smith" {
		t.Errorf("DisplayName = %q, want Ann Smith", got.DisplayName)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Errorf("timestamps not set: %+v", got)
	}
}

func TestUpsertBlankNameKeepsExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertRecipient(ctx, "bob@co.com", "Bob"); err != nil {
		t.Fatalf("UpsertRecipient: %v", err)
	}
	r, err := store.UpsertRecipient(ctx, "bob@co.com", "  ")
	if err != nil {
		t.Fatalf("UpsertRecipient (blank name): %v", err)
	}
	if r.DisplayName != "Bob" {
		t.Errorf("DisplayName = %q, want Bob", r.DisplayName)
	}

	if _, err := store.UpsertRecipient(ctx, "bob@co.com", "Robert"); err != nil {
		t.Fatalf("UpsertRecipient (rename): %v", err)
	}
	got, _ := store.Lookup(ctx, "bob@co.com")
	if got.DisplayName != "Robert" {
		t.Errorf("DisplayName after rename = %q, want Robert", got.DisplayName)
	}

	n, err := store.RecipientCount(ctx)
	if err != nil {
		t.Fatalf("RecipientCount: %v", err)
	}
	if n != 1 {
		t.Errorf("RecipientCount = %d, want 1", n)
	}
}

func TestUpsertRejectsInvalidEmail(t *testing.T) {
	store := newTestStore(t)
	for _, email := range []string{"", "not-an-email", "Ann <ann@co.com>"} {
		if _, err := store.UpsertRecipient(context.Background(), email, "x"); !errors.Is(err, model.ErrInvalidRecipient) {
			t.Errorf("UpsertRecipient(%q) err = %v, want ErrInvalidRecipient", email, err)
		}
	}
}

func TestLookupMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Lookup(context.Background(), "ghost@co.com")
	if !errors.Is(err, model.ErrRecipientNotFound) {
		t.Errorf("Lookup err = %v, want ErrRecipientNotFound", err)
	}
}

func TestListRecipientsOrdered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, r := range []model.Recipient{
		{Email: "c@co.com", DisplayName: "Cy"},
		{Email: "a@co.com", DisplayName: "Ann"},
		{Email: "b@co.com", DisplayName: "Ann"},
	} {
		if _, err := store.UpsertRecipient(ctx, r.Email, r.DisplayName); err != nil {
			t.Fatalf("UpsertRecipient: %v", err)
		}
	}

	list, err := store.ListRecipients(ctx)
	if err != nil {
		t.Fatalf("ListRecipients: %v", err)
	}
	want := []string{"a@co.com", "b@co.com", "c@co.com"}
	if len(list) != len(want) {
		t.Fatalf("ListRecipients returned %d, want %d", len(list), len(want))
	}
	for i, r := range list {
		if r.Email != want[i] {
			t.Errorf("list[%d] = %s, want %s", i, r.Email, want[i])
		}
	}
}

func TestListRecipientsEmpty(t *testing.T) {
	store := newTestStore(t)
	list, err := store.ListRecipients(context.Background())
	if err != nil {
		t.Fatalf("ListRecipients: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("ListRecipients = %#v, want empty non-nil slice", list)
	}
}

func TestDeleteRecipient(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertRecipient(ctx, "gone@co.com", "Gone"); err != nil {
		t.Fatalf("UpsertRecipient: %v", err)
	}
	if err := store.DeleteRecipient(ctx, "GONE@co.com"); err != nil {
		t.Fatalf("DeleteRecipient: %v", err)
	}
	if _, err := store.Lookup(ctx, "gone@co.com"); !errors.Is(err, model.ErrRecipientNotFound) {
		t.Errorf("Lookup after delete err = %v, want ErrRecipientNotFound", err)
	}
	if err := store.DeleteRecipient(ctx, "gone@co.com"); !errors.Is(err, model.ErrRecipientNotFound) {
		t.Errorf("second DeleteRecipient err = %v, want ErrRecipientNotFound", err)
	}
}

func TestImportRecipients(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.ImportRecipients(ctx, []model.Recipient{
		{Email: "a@co.com", DisplayName: "Ann"},
		{Email: "", DisplayName: "No Email"},
		{Email: "B@co.com", DisplayName: "Bob"},
		{Email: "a@co.com", DisplayName: ""},
	})
	if err != nil {
		t.Fatalf("ImportRecipients: %v", err)
	}
	if n != 3 {
		t.Errorf("imported = %d, want 3", n)
	}
	got, err := store.Lookup(ctx, "a@co.com")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.DisplayName != "Ann" {
		t.Errorf("DisplayName = %q, want Ann", got.DisplayName)
	}
	count, _ := store.RecipientCount(ctx)
	if count != 2 {
		t.Errorf("RecipientCount = %d, want 2", count)
	}
}

func TestImportRecipientsIsAllOrNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ImportRecipients(ctx, []model.Recipient{
		{Email: "a@co.com", DisplayName: "Ann"},
		{Email: "broken", DisplayName: "Bad"},
	})
	if !errors.Is(err, model.ErrInvalidRecipient) {
		t.Fatalf("ImportRecipients err = %v, want ErrInvalidRecipient", err)
	}
	count, _ := store.RecipientCount(ctx)
	if count != 0 {
		t.Errorf("RecipientCount after failed import = %d, want 0", count)
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
