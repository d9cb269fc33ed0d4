package engine

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	REDIS_KEY_ROUND_LAST = "rounds:last:"
	ROUND_ARCHIVE_TTL    = 1 * time.Hour
)

// Archive keeps the most recent terminal round per variant in redis so
// the UI can show the last result after a reload.
type Archive struct {
	client *redis.Client
}

func NewArchive(client *redis.Client) *Archive {
	return &Archive{client: client}
}

func (a *Archive) StoreRound(ctx context.Context, r *Round) {
	if a == nil || a.client == nil || r == nil {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	key := REDIS_KEY_ROUND_LAST + string(r.Variant)
	if err := a.client.Set(ctx, key, data, ROUND_ARCHIVE_TTL).Err(); err != nil {
		log.Printf("[ENGINE] Failed to archive round %s: %v", r.ID, err)
	}
}

func (a *Archive) LastRound(ctx context.Context, v Variant) (*Round, error) {
	if a == nil || a.client == nil {
		return nil, redis.Nil
	}
	data, err := a.client.Get(ctx, REDIS_KEY_ROUND_LAST+string(v)).Bytes()
	if err != nil {
		return nil, err
	}
	var r Round
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
