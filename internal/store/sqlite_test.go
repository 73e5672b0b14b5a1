package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:classdeck_store_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.AutoMigrate(&StoredRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type sequenceIDProvider struct {
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("rec-%d", p.next), nil
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	recordStore, err := NewSQLiteStore(SQLiteStoreConfig{
		Database:   openTestDatabase(t),
		IDProvider: &sequenceIDProvider{},
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return recordStore
}

func TestSQLiteStoreCreateAndList(t *testing.T) {
	recordStore := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := recordStore.Create(ctx, CollectionClasses, Fields{"name": "5B", "owner": "t1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected an assigned identifier")
	}
	if _, err := recordStore.Create(ctx, CollectionClasses, Fields{"name": "6C", "owner": "t2"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	records, err := recordStore.List(ctx, CollectionClasses, NewEqualsFilter("owner", "t1"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record for t1, got %d", len(records))
	}
	if records[0].ID != created.ID {
		t.Fatalf("unexpected record id: %s", records[0].ID)
	}
	if records[0].Fields["name"] != "5B" {
		t.Fatalf("unexpected name field: %v", records[0].Fields["name"])
	}
}

func TestSQLiteStoreListScopesByCollection(t *testing.T) {
	recordStore := newTestSQLiteStore(t)
	ctx := context.Background()

	if _, err := recordStore.Create(ctx, CollectionClasses, Fields{"owner": "t1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := recordStore.Create(ctx, CollectionBehaviors, Fields{"owner": "t1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	records, err := recordStore.List(ctx, CollectionBehaviors, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected only the behavior record, got %d", len(records))
	}
}

func TestSQLiteStoreUpdate(t *testing.T) {
	recordStore := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := recordStore.Create(ctx, CollectionClasses, Fields{"name": "5B"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := recordStore.Update(ctx, CollectionClasses, created.ID, Fields{"name": "5B Renamed"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Fields["name"] != "5B Renamed" {
		t.Fatalf("unexpected updated fields: %v", updated.Fields)
	}

	records, err := recordStore.List(ctx, CollectionClasses, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if records[0].Fields["name"] != "5B Renamed" {
		t.Fatalf("update was not persisted: %v", records[0].Fields)
	}
}

func TestSQLiteStoreUpdateMissingRecord(t *testing.T) {
	recordStore := newTestSQLiteStore(t)

	_, err := recordStore.Update(context.Background(), CollectionClasses, "nope", Fields{"name": "x"})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestSQLiteStoreDelete(t *testing.T) {
	recordStore := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := recordStore.Create(ctx, CollectionClasses, Fields{"name": "5B"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := recordStore.Delete(ctx, CollectionClasses, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	records, err := recordStore.List(ctx, CollectionClasses, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty collection after delete, got %d", len(records))
	}

	if err := recordStore.Delete(ctx, CollectionClasses, created.ID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound on second delete, got %v", err)
	}
}

func TestSQLiteStoreValidatesInput(t *testing.T) {
	recordStore := newTestSQLiteStore(t)
	ctx := context.Background()

	if _, err := recordStore.List(ctx, "  ", Filter{}); !errors.Is(err, ErrInvalidCollection) {
		t.Fatalf("expected ErrInvalidCollection, got %v", err)
	}
	if _, err := recordStore.Update(ctx, CollectionClasses, "", Fields{}); !errors.Is(err, ErrInvalidRecordID) {
		t.Fatalf("expected ErrInvalidRecordID, got %v", err)
	}
	if err := recordStore.Delete(ctx, CollectionClasses, " "); !errors.Is(err, ErrInvalidRecordID) {
		t.Fatalf("expected ErrInvalidRecordID, got %v", err)
	}
}
