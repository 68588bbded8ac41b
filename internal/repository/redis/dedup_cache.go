package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trust-service/internal/client"
	"trust-service/internal/util"
)

const dedupPrefix = "payment_intent:"

// DedupCache indexes recent payment intents by fingerprint so repeated
// requests short-circuit before touching the store. The store query
// remains the authoritative duplicate check.
type DedupCache struct {
	client *client.RedisClient
}

func NewDedupCache(client *client.RedisClient) *DedupCache {
	return &DedupCache{client: client}
}

// Remember records fingerprint -> payment id for the dedup window.
func (c *DedupCache) Remember(fingerprint string, paymentID uuid.UUID, window time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, dedupPrefix+fingerprint, paymentID.String(), window); err != nil {
		util.Warn("failed to index payment intent",
			util.String("fingerprint", fingerprint),
			util.ErrorField(err))
	}
}

// Lookup returns the payment id recorded for a fingerprint, or
// uuid.Nil when none is cached.
func (c *DedupCache) Lookup(fingerprint string) uuid.UUID {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	val, err := c.client.Get(ctx, dedupPrefix+fingerprint)
	if err != nil {
		if !errors.Is(err, client.ErrKeyNotFound) {
			util.Debug("payment intent lookup failed",
				util.String("fingerprint", fingerprint),
				util.ErrorField(err))
		}
		return uuid.Nil
	}

	id, err := uuid.Parse(val)
	if err != nil {
		util.Warn("payment intent index holds garbage",
			util.String("fingerprint", fingerprint),
			util.String("value", val))
		return uuid.Nil
	}
	return id
}

// Forget drops the index entry once the intent reached a terminal state.
func (c *DedupCache) Forget(fingerprint string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, dedupPrefix+fingerprint); err != nil {
		util.Warn(fmt.Sprintf("failed to drop payment intent %s", fingerprint),
			util.ErrorField(err))
	}
}
