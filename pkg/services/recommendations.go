package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/partsbench/partsbench-engine/pkg/apperrors"
	"github.com/partsbench/partsbench-engine/pkg/bus"
	"github.com/partsbench/partsbench-engine/pkg/models"
)

// LedgerReader is the read-only slice of the ledger the recommendation
// service needs. It never mutates inventory state.
type LedgerReader interface {
	Items() []*models.InventoryItem
	Item(id uuid.UUID) (*models.InventoryItem, error)
	Project(id uuid.UUID) (*models.Project, error)
	CompletedProjects() map[uuid.UUID]bool
}

// RecommendationService serves alternative and suggestion results out of a
// process-local cache. Concurrent misses for the same key collapse into one
// computation; mutations invalidate affected entries.
type RecommendationService interface {
	// Alternatives returns ranked substitutes for itemID. refresh bypasses
	// the cache and recomputes.
	Alternatives(ctx context.Context, itemID uuid.UUID, refresh bool) (*models.RecommendationEntry, error)

	// Suggestions returns ranked part picks for projectID. threshold
	// overrides the configured confidence floor when non-nil.
	Suggestions(ctx context.Context, projectID uuid.UUID, threshold *float64, refresh bool) (*models.RecommendationEntry, error)

	InvalidateItem(id uuid.UUID)
	InvalidateProject(id uuid.UUID)
	InvalidateAll()
}

type recommendationService struct {
	ledger    LedgerReader
	scorer    Scorer
	fallback  *FallbackAdvisor
	health    *HealthTracker
	bus       *bus.Bus
	logger    *zap.Logger
	threshold float64

	mu    sync.Mutex
	cache map[string]*models.RecommendationEntry
	group singleflight.Group
}

// NewRecommendationService creates the cache-backed recommendation front.
// threshold is the default suggestion confidence floor.
func NewRecommendationService(
	ledger LedgerReader,
	scorer Scorer,
	fallback *FallbackAdvisor,
	health *HealthTracker,
	b *bus.Bus,
	threshold float64,
	logger *zap.Logger,
) RecommendationService {
	return &recommendationService{
		ledger:    ledger,
		scorer:    scorer,
		fallback:  fallback,
		health:    health,
		bus:       b,
		logger:    logger.Named("recommendations"),
		threshold: threshold,
		cache:     make(map[string]*models.RecommendationEntry),
	}
}

var _ RecommendationService = (*recommendationService)(nil)

func altKey(id uuid.UUID) string  { return "alt:" + id.String() }
func suggKey(id uuid.UUID) string { return "sugg:" + id.String() }

func (s *recommendationService) Alternatives(ctx context.Context, itemID uuid.UUID, refresh bool) (*models.RecommendationEntry, error) {
	source, err := s.ledger.Item(itemID)
	if err != nil {
		return nil, err
	}

	key := altKey(itemID)
	if refresh {
		s.dropEntry(key)
		s.bus.Publish(bus.Event{Kind: bus.EventRefreshRequested, ItemID: itemID})
	} else if entry := s.cachedEntry(key); entry != nil {
		return entry, nil
	}

	entry, err := s.compute(ctx, key, func() (*models.RecommendationEntry, error) {
		return s.computeAlternatives(source)
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(bus.Event{Kind: bus.EventAlternativesComputed, ItemID: itemID, Payload: entry})
	return entry, nil
}

func (s *recommendationService) Suggestions(ctx context.Context, projectID uuid.UUID, threshold *float64, refresh bool) (*models.RecommendationEntry, error) {
	project, err := s.ledger.Project(projectID)
	if err != nil {
		return nil, err
	}

	floor := s.threshold
	if threshold != nil {
		if *threshold < 0 || *threshold > 1 {
			return nil, fmt.Errorf("%w: threshold must be within [0, 1]", apperrors.ErrValidation)
		}
		floor = *threshold
	}

	key := suggKey(projectID)
	// A caller-supplied threshold changes the result set, so it never uses
	// or populates the shared cache entry.
	custom := threshold != nil && *threshold != s.threshold

	if refresh {
		s.dropEntry(key)
		s.bus.Publish(bus.Event{Kind: bus.EventRefreshRequested, ProjectID: projectID})
	} else if !custom {
		if entry := s.cachedEntry(key); entry != nil {
			return entry, nil
		}
	}

	var entry *models.RecommendationEntry
	if custom {
		entry, err = s.computeSuggestions(project, floor)
	} else {
		entry, err = s.compute(ctx, key, func() (*models.RecommendationEntry, error) {
			return s.computeSuggestions(project, floor)
		})
	}
	if err != nil {
		return nil, err
	}
	s.bus.Publish(bus.Event{Kind: bus.EventPredictionsComputed, ProjectID: projectID, Payload: entry})
	return entry, nil
}

// compute funnels concurrent misses for key through a single computation and
// caches the winner. A canceled caller detaches without canceling the
// in-flight work; other waiters still receive the result.
func (s *recommendationService) compute(ctx context.Context, key string, fn func() (*models.RecommendationEntry, error)) (*models.RecommendationEntry, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		entry, err := fn()
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[key] = entry
		s.mu.Unlock()
		return entry, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.RecommendationEntry), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *recommendationService) computeAlternatives(source *models.InventoryItem) (*models.RecommendationEntry, error) {
	pool := s.ledger.Items()
	completed := s.ledger.CompletedProjects()

	alternatives, err := s.scorer.FindAlternatives(source, pool, completed)
	if err != nil {
		if !s.degradable(err) {
			return nil, err
		}
		s.health.Record(err)
		s.logger.Warn("serving degraded alternatives",
			zap.String("item", source.ID.String()),
			zap.Error(err))
		return &models.RecommendationEntry{
			Alternatives: s.fallback.Alternatives(source, pool),
			ComputedAt:   time.Now(),
			Degraded:     true,
		}, nil
	}

	return &models.RecommendationEntry{
		Alternatives: alternatives,
		ComputedAt:   time.Now(),
	}, nil
}

func (s *recommendationService) computeSuggestions(project *models.Project, threshold float64) (*models.RecommendationEntry, error) {
	pool := s.ledger.Items()

	suggestions, err := s.scorer.SuggestForProject(project.Kind, project.Description, pool, threshold)
	if err != nil {
		if !s.degradable(err) {
			return nil, err
		}
		s.health.Record(err)
		s.logger.Warn("serving degraded suggestions",
			zap.String("project", project.ID.String()),
			zap.Error(err))
		return &models.RecommendationEntry{
			Suggestions: s.fallback.Suggestions(pool),
			ComputedAt:  time.Now(),
			Degraded:    true,
		}, nil
	}

	return &models.RecommendationEntry{
		Suggestions: suggestions,
		ComputedAt:  time.Now(),
	}, nil
}

// degradable reports whether err should produce a degraded fallback result
// instead of failing the request.
func (s *recommendationService) degradable(err error) bool {
	return errors.Is(err, apperrors.ErrInsufficientData) ||
		errors.Is(err, apperrors.ErrUpstreamUnavailable)
}

func (s *recommendationService) InvalidateItem(id uuid.UUID) {
	s.dropEntry(altKey(id))
}

func (s *recommendationService) InvalidateProject(id uuid.UUID) {
	s.dropEntry(suggKey(id))
}

// InvalidateAll clears the whole cache. Quantity and allocation changes
// affect every candidate pool, so per-key invalidation would be wrong.
func (s *recommendationService) InvalidateAll() {
	s.mu.Lock()
	s.cache = make(map[string]*models.RecommendationEntry)
	s.mu.Unlock()
}

func (s *recommendationService) dropEntry(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
}

func (s *recommendationService) cachedEntry(key string) *models.RecommendationEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache[key]
}
