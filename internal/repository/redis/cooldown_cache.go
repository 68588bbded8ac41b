// Package redis holds best-effort caches in front of the authoritative
// store. Losing redis degrades performance, never correctness: the
// services re-check every limit against persisted state.
package redis

import (
	"context"
	"fmt"
	"time"

	"trust-service/internal/client"
	"trust-service/internal/util"
)

const (
	cooldownPrefix = "verify_cooldown:"
	blockPrefix    = "verify_block:"
)

// CooldownCache fast-paths the resend cooldown and lockout checks for
// phone verification, so hot retry loops do not hammer the store.
type CooldownCache struct {
	client *client.RedisClient
}

func NewCooldownCache(client *client.RedisClient) *CooldownCache {
	return &CooldownCache{client: client}
}

// MarkCodeSent records that a code went out; returns false when the
// cooldown window from a previous send is still open.
func (c *CooldownCache) MarkCodeSent(phoneHash string, cooldown time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ok, err := c.client.SetNX(ctx, cooldownPrefix+phoneHash, "1", cooldown)
	if err != nil {
		return false, fmt.Errorf("failed to mark code sent: %w", err)
	}
	return ok, nil
}

// ClearCooldown releases the cooldown early, used when the SMS could not
// be handed off and the code was rolled back.
func (c *CooldownCache) ClearCooldown(phoneHash string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, cooldownPrefix+phoneHash); err != nil {
		util.Warn("failed to clear verification cooldown",
			util.String("phone_hash", phoneHash),
			util.ErrorField(err))
	}
}

// MarkBlocked mirrors a lockout into redis for cheap rejection.
func (c *CooldownCache) MarkBlocked(phoneHash string, duration time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, blockPrefix+phoneHash, "1", duration); err != nil {
		util.Warn("failed to mirror verification block",
			util.String("phone_hash", phoneHash),
			util.ErrorField(err))
	}
}

// IsBlocked checks the mirrored lockout. Errors are swallowed and
// reported as not blocked; the persisted record is authoritative.
func (c *CooldownCache) IsBlocked(phoneHash string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	blocked, err := c.client.Exists(ctx, blockPrefix+phoneHash)
	if err != nil {
		util.Debug("verification block lookup failed",
			util.String("phone_hash", phoneHash),
			util.ErrorField(err))
		return false
	}
	return blocked
}

// ClearBlock removes the mirrored lockout after an explicit unblock.
func (c *CooldownCache) ClearBlock(phoneHash string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, blockPrefix+phoneHash); err != nil {
		util.Warn("failed to clear verification block",
			util.String("phone_hash", phoneHash),
			util.ErrorField(err))
	}
}
