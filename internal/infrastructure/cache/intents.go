package cache

import (
	"context"
	"encoding/json"
	"time"

	"ecofusion-backend/internal/domain"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const intentTTL = 7 * 24 * time.Hour

// Intents caches submit intents by evidence URI.
type Intents struct {
	rdb *redis.Client
}

func NewIntents(rdb *redis.Client) *Intents {
	return &Intents{rdb: rdb}
}

func intentKey(evidenceURI string) string { return "actions:intent:" + evidenceURI }

func (i *Intents) Put(ctx context.Context, evidenceURI string, intent domain.SubmitIntent) error {
	b, err := json.Marshal(intent)
	if err != nil {
		return errors.Wrap(err, "encode submit intent")
	}
	return errors.Wrap(i.rdb.Set(ctx, intentKey(evidenceURI), b, intentTTL).Err(), "store submit intent")
}

// Get returns the cached intent, or false when none is cached.
func (i *Intents) Get(ctx context.Context, evidenceURI string) (domain.SubmitIntent, bool, error) {
	var intent domain.SubmitIntent
	b, err := i.rdb.Get(ctx, intentKey(evidenceURI)).Bytes()
	if errors.Is(err, redis.Nil) {
		return intent, false, nil
	}
	if err != nil {
		return intent, false, errors.Wrap(err, "read submit intent")
	}
	if err := json.Unmarshal(b, &intent); err != nil {
		return intent, false, errors.Wrap(err, "decode submit intent")
	}
	return intent, true, nil
}
