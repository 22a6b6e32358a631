package pipeline

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/fundwave/services/events/internal/cache"
	"example.com/fundwave/services/events/internal/events"
)

// Invalidator evicts cache keys and marks them stale
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// CacheInvalidationProcessor marks derived cache entries stale when the
// entities they were built from mutate. The cache store itself is
// external; this processor only decides which keys are now stale.
type CacheInvalidationProcessor struct {
	cache Invalidator
}

// NewCacheInvalidationProcessor creates a new cache invalidation processor
func NewCacheInvalidationProcessor(invalidator Invalidator) *CacheInvalidationProcessor {
	return &CacheInvalidationProcessor{cache: invalidator}
}

// Name returns the processor name used in the status ledger
func (p *CacheInvalidationProcessor) Name() string {
	return ProcessorCache
}

// Handle invalidates the keys made stale by the event
func (p *CacheInvalidationProcessor) Handle(ctx context.Context, event *events.DomainEvent, payload events.Payload) error {
	keys := staleKeys(payload)
	if len(keys) == 0 {
		return nil
	}

	if err := p.cache.Invalidate(ctx, keys...); err != nil {
		return errors.Wrap(err, "failed to invalidate cache keys")
	}

	log.Debug().
		Str("event_id", event.ID).
		Strs("keys", keys).
		Msg("Cache keys invalidated")
	return nil
}

// staleKeys maps an event payload to the cache keys it makes stale
func staleKeys(payload events.Payload) []string {
	switch pl := payload.(type) {
	case *events.DonationCompletedPayload:
		return []string{
			cache.CampaignAnalyticsCacheKey(pl.CampaignID),
			cache.CampaignCacheKey(pl.CampaignID),
		}
	case *events.CampaignCreatedPayload:
		return []string{cache.CampaignCacheKey(pl.CampaignID), "campaigns:index"}
	case *events.CampaignUpdatedPayload:
		return []string{cache.CampaignCacheKey(pl.CampaignID), "campaigns:index"}
	case *events.CampaignStatusChangedPayload:
		return []string{cache.CampaignCacheKey(pl.CampaignID), "campaigns:index"}
	case *events.CampaignGoalReachedPayload:
		return []string{cache.CampaignCacheKey(pl.CampaignID)}
	case *events.UserUpdatedPayload:
		return []string{cache.UserCacheKey(pl.UserID)}
	case *events.OrganizationUpdatedPayload:
		return []string{cache.OrganizationCacheKey(pl.OrganizationID)}
	default:
		return nil
	}
}
