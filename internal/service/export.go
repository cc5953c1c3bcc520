package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"pawedaran/internal/clients"
	"pawedaran/internal/domain"
)

const exportSetKey = "export_ids"

type ExportStatus struct {
	Key      string         `json:"key"`
	Type     string         `json:"type"`
	UserID   int64          `json:"user_id"`
	Filters  map[string]any `json:"filters"`
	Progress float64        `json:"progress"`
	Stage    string         `json:"stage,omitempty"`
	FileURL  *string        `json:"file_url"`
	Error    *string        `json:"error,omitempty"`
	Created  time.Time      `json:"created_at"`
}

// exportStore keeps export statuses in redis under their key and indexes the keys in
// one set so they can be listed.
type exportStore struct {
	cache Cache
	ttl   time.Duration
}

func (s exportStore) save(ctx context.Context, st *ExportStatus) error {
	if s.cache == nil {
		return nil
	}

	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, st.Key, string(data), s.ttl); err != nil {
		return err
	}
	return s.cache.SAdd(ctx, exportSetKey, st.Key)
}

func (s exportStore) load(ctx context.Context, key string) (*ExportStatus, error) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, clients.ErrCacheMiss) {
			return nil, domain.ErrExportNotFound
		}
		return nil, fmt.Errorf("get export %s: %w", key, err)
	}

	var st ExportStatus
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("parse export %s: %w", key, err)
	}
	return &st, nil
}

type ExportService struct {
	store exportStore
}

func NewExportService(cache Cache) *ExportService {
	return &ExportService{store: exportStore{cache: cache}}
}

// List returns the requester's exports that have not expired yet, newest first. Keys whose
// status has expired are pruned from the index set.
func (s *ExportService) List(ctx context.Context, requester domain.Requester) ([]ExportStatus, error) {
	if s.store.cache == nil {
		return nil, errors.New("redis client not configured")
	}

	keys, err := s.store.cache.SMembers(ctx, exportSetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get export keys: %w", err)
	}

	statuses := []ExportStatus{}
	var expired []any
	for _, key := range keys {
		st, err := s.store.load(ctx, key)
		if err != nil {
			if errors.Is(err, domain.ErrExportNotFound) {
				expired = append(expired, key)
			}
			continue
		}
		if st.UserID == requester.ID {
			statuses = append(statuses, *st)
		}
	}

	if len(expired) > 0 {
		if err := s.store.cache.SRem(ctx, exportSetKey, expired...); err != nil {
			log.Printf("[EXPORT] prune expired keys: %v", err)
		}
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Created.After(statuses[j].Created)
	})
	return statuses, nil
}

// Get accepts the export id with or without its "exports:" prefix. Exports of other users
// are reported as not found.
func (s *ExportService) Get(ctx context.Context, exportID string, requester domain.Requester) (*ExportStatus, error) {
	if s.store.cache == nil {
		return nil, errors.New("redis client not configured")
	}

	key := exportID
	if !strings.HasPrefix(key, exportKeyPrefix) {
		key = exportKeyPrefix + key
	}

	st, err := s.store.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if st.UserID != requester.ID {
		return nil, domain.ErrExportNotFound
	}
	return st, nil
}
