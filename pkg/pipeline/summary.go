package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/carelink-health/platform/pkg/common/models"
	"github.com/redis/go-redis/v9"
)

const summaryKey = "consolidation:last-run"

var ErrNoRun = errors.New("no consolidation run recorded")

// SummaryCache keeps the most recent run report in Redis so operators can
// poll it without touching the database.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SummaryCache{client: client, ttl: ttl}
}

func (c *SummaryCache) Store(ctx context.Context, summary models.RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKey, payload, c.ttl).Err()
}

func (c *SummaryCache) Latest(ctx context.Context) (models.RunSummary, error) {
	payload, err := c.client.Get(ctx, summaryKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.RunSummary{}, ErrNoRun
	}
	if err != nil {
		return models.RunSummary{}, err
	}
	var summary models.RunSummary
	if err := json.Unmarshal(payload, &summary); err != nil {
		return models.RunSummary{}, err
	}
	return summary, nil
}
