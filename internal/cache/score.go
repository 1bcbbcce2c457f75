package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/radiowatch/radiowatch/internal/domain"
)

// byteStore is the raw key/value surface shared by every cache tier.
type byteStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func scoreKey(networkID string) string {
	return "score:" + domain.NormalizeNetworkID(networkID)
}

func getScore(ctx context.Context, s byteStore, networkID string) (*domain.ScoreRecord, error) {
	data, err := s.Get(ctx, scoreKey(networkID))
	if err != nil || data == nil {
		return nil, err
	}
	var rec domain.ScoreRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func setScore(ctx context.Context, s byteStore, rec *domain.ScoreRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.Set(ctx, scoreKey(rec.NetworkID), data, ttl)
}
