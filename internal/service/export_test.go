package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"pawedaran/internal/domain"
)

func TestExportService_ListOwnNewestFirst(t *testing.T) {
	cache := newMemCache()
	store := exportStore{cache: cache, ttl: time.Minute}
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range []ExportStatus{
		{Key: "exports:a", UserID: 7, Created: base},
		{Key: "exports:b", UserID: 7, Created: base.Add(time.Minute)},
		{Key: "exports:c", UserID: 8, Created: base.Add(2 * time.Minute)},
	} {
		st := st
		if err := store.save(ctx, &st); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	list, err := NewExportService(cache).List(ctx, domain.Requester{ID: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].Key != "exports:b" || list[1].Key != "exports:a" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestExportService_ListPrunesExpired(t *testing.T) {
	cache := newMemCache()
	ctx := context.Background()
	_ = cache.SAdd(ctx, exportSetKey, "exports:gone")

	list, err := NewExportService(cache).List(ctx, domain.Requester{ID: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %+v", list)
	}
	members, _ := cache.SMembers(ctx, exportSetKey)
	if len(members) != 0 {
		t.Fatalf("expected expired key pruned, got %v", members)
	}
}

func TestExportService_GetHidesOtherUsers(t *testing.T) {
	cache := newMemCache()
	ctx := context.Background()
	if err := (exportStore{cache: cache}).save(ctx, &ExportStatus{Key: "exports:x", UserID: 8}); err != nil {
		t.Fatalf("save: %v", err)
	}
	svc := NewExportService(cache)

	if _, err := svc.Get(ctx, "x", domain.Requester{ID: 8}); err != nil {
		t.Fatalf("owner should read export by bare id: %v", err)
	}
	if _, err := svc.Get(ctx, "exports:x", domain.Requester{ID: 7}); !errors.Is(err, domain.ErrExportNotFound) {
		t.Fatalf("expected ErrExportNotFound, got %v", err)
	}
	if _, err := svc.Get(ctx, "missing", domain.Requester{ID: 8}); !errors.Is(err, domain.ErrExportNotFound) {
		t.Fatalf("expected ErrExportNotFound, got %v", err)
	}
}
