package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"poltrona/internal/models"

	"github.com/redis/go-redis/v9"
)

const chairKeyPrefix = "poltrona:chair:"

// CacheService keeps a JSON copy of chair rows in redis. Only registry
// reads go through here; anything that gates a payment decision reads the
// database.
type CacheService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCacheService(client *redis.Client, ttl time.Duration) *CacheService {
	return &CacheService{client: client, ttl: ttl}
}

func chairKey(chairID string) string {
	return chairKeyPrefix + chairID
}

func (s *CacheService) CacheChair(ctx context.Context, chair *models.Chair) error {
	if chair == nil {
		return errors.New("cannot cache nil chair")
	}
	data, err := json.Marshal(chair)
	if err != nil {
		return fmt.Errorf("marshal chair %s: %w", chair.ChairID, err)
	}
	return s.client.Set(ctx, chairKey(chair.ChairID), data, s.ttl).Err()
}

// GetChair reports found=false on a miss; a decode failure drops the entry.
func (s *CacheService) GetChair(ctx context.Context, chairID string) (*models.Chair, bool, error) {
	data, err := s.client.Get(ctx, chairKey(chairID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get chair %s: %w", chairID, err)
	}

	var chair models.Chair
	if err := json.Unmarshal(data, &chair); err != nil {
		_ = s.InvalidateChair(ctx, chairID)
		return nil, false, nil
	}
	return &chair, true, nil
}

func (s *CacheService) InvalidateChair(ctx context.Context, chairID string) error {
	return s.client.Del(ctx, chairKey(chairID)).Err()
}

// FlushChairs drops every cached chair, leaving other keys in the same
// redis database alone. Returns the number of keys removed.
func (s *CacheService) FlushChairs(ctx context.Context) (int, error) {
	var removed int
	iter := s.client.Scan(ctx, 0, chairKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, iter.Err()
}

func (s *CacheService) Close() error {
	return s.client.Close()
}
