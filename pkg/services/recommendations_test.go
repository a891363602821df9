package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/partsbench/partsbench-engine/pkg/apperrors"
	"github.com/partsbench/partsbench-engine/pkg/bus"
	"github.com/partsbench/partsbench-engine/pkg/models"
)

type stubLedger struct {
	items     []*models.InventoryItem
	projects  map[uuid.UUID]*models.Project
	completed map[uuid.UUID]bool
}

func (l *stubLedger) Items() []*models.InventoryItem {
	out := make([]*models.InventoryItem, len(l.items))
	for i, item := range l.items {
		out[i] = item.Clone()
	}
	return out
}

func (l *stubLedger) Item(id uuid.UUID) (*models.InventoryItem, error) {
	for _, item := range l.items {
		if item.ID == id {
			return item.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: component %s", apperrors.ErrNotFound, id)
}

func (l *stubLedger) Project(id uuid.UUID) (*models.Project, error) {
	if p, ok := l.projects[id]; ok {
		return p.Clone(), nil
	}
	return nil, fmt.Errorf("%w: project %s", apperrors.ErrNotFound, id)
}

func (l *stubLedger) CompletedProjects() map[uuid.UUID]bool { return l.completed }

// countingScorer wraps results with call counting and an optional gate that
// holds computations open until released.
type countingScorer struct {
	altCalls  atomic.Int64
	suggCalls atomic.Int64
	gate      chan struct{}
	err       error
}

func (c *countingScorer) FindAlternatives(source *models.InventoryItem, _ []*models.InventoryItem, _ map[uuid.UUID]bool) ([]models.Alternative, error) {
	c.altCalls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	if c.err != nil {
		return nil, c.err
	}
	return []models.Alternative{{CandidateID: uuid.New(), Name: "alt of " + source.Name, CompatibilityScore: 60, Available: 1}}, nil
}

func (c *countingScorer) SuggestForProject(string, string, []*models.InventoryItem, float64) ([]models.ComponentSuggestion, error) {
	c.suggCalls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	if c.err != nil {
		return nil, c.err
	}
	return []models.ComponentSuggestion{{ComponentID: uuid.New(), Name: "pick", Confidence: 0.6, Available: 2}}, nil
}

func recommendationFixture(scorer Scorer) (*stubLedger, RecommendationService) {
	price := 2.5
	item := &models.InventoryItem{ID: uuid.New(), Name: "servo motor", Category: "motor", Quantity: 5, Status: models.StatusInStock, UnitPrice: &price}
	other := &models.InventoryItem{ID: uuid.New(), Name: "dc motor", Category: "motor", Quantity: 3, Status: models.StatusInStock}
	project := &models.Project{ID: uuid.New(), Name: "Rover", Kind: "robotics", Status: models.ProjectPlanning}

	ledger := &stubLedger{
		items:    []*models.InventoryItem{item, other},
		projects: map[uuid.UUID]*models.Project{project.ID: project},
	}
	svc := NewRecommendationService(
		ledger,
		scorer,
		NewFallbackAdvisor(),
		NewHealthTracker(time.Minute, 5),
		bus.New(zap.NewNop()),
		0.4,
		zap.NewNop(),
	)
	return ledger, svc
}

func TestAlternativesCachesResults(t *testing.T) {
	scorer := &countingScorer{}
	ledger, svc := recommendationFixture(scorer)
	itemID := ledger.items[0].ID

	first, err := svc.Alternatives(context.Background(), itemID, false)
	require.NoError(t, err)
	require.Len(t, first.Alternatives, 1)
	assert.False(t, first.Degraded)

	second, err := svc.Alternatives(context.Background(), itemID, false)
	require.NoError(t, err)
	assert.Equal(t, first.ComputedAt, second.ComputedAt)
	assert.Equal(t, int64(1), scorer.altCalls.Load())
}

func TestAlternativesRefreshRecomputes(t *testing.T) {
	scorer := &countingScorer{}
	ledger, svc := recommendationFixture(scorer)
	itemID := ledger.items[0].ID

	_, err := svc.Alternatives(context.Background(), itemID, false)
	require.NoError(t, err)
	_, err = svc.Alternatives(context.Background(), itemID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), scorer.altCalls.Load())
}

func TestAlternativesUnknownItem(t *testing.T) {
	_, svc := recommendationFixture(&countingScorer{})
	_, err := svc.Alternatives(context.Background(), uuid.New(), false)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInvalidateAllClearsCache(t *testing.T) {
	scorer := &countingScorer{}
	ledger, svc := recommendationFixture(scorer)
	itemID := ledger.items[0].ID

	_, err := svc.Alternatives(context.Background(), itemID, false)
	require.NoError(t, err)
	svc.InvalidateAll()
	_, err = svc.Alternatives(context.Background(), itemID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), scorer.altCalls.Load())
}

func TestConcurrentMissesCollapse(t *testing.T) {
	scorer := &countingScorer{gate: make(chan struct{})}
	ledger, svc := recommendationFixture(scorer)
	itemID := ledger.items[0].ID

	var wg sync.WaitGroup
	results := make([]*models.RecommendationEntry, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := svc.Alternatives(context.Background(), itemID, false)
			assert.NoError(t, err)
			results[i] = entry
		}(i)
	}

	// Let every goroutine reach the in-flight computation, then release it.
	require.Eventually(t, func() bool {
		return scorer.altCalls.Load() >= 1
	}, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(scorer.gate)
	wg.Wait()

	assert.Equal(t, int64(1), scorer.altCalls.Load())
	for _, entry := range results {
		require.NotNil(t, entry)
		assert.Equal(t, results[0].ComputedAt, entry.ComputedAt)
	}
}

func TestCanceledWaiterDetaches(t *testing.T) {
	scorer := &countingScorer{gate: make(chan struct{})}
	ledger, svc := recommendationFixture(scorer)
	itemID := ledger.items[0].ID

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Alternatives(ctx, itemID, false)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return scorer.altCalls.Load() == 1
	}, time.Second, time.Millisecond)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	close(scorer.gate)
}

func TestDegradedAlternativesFallBack(t *testing.T) {
	scorer := &countingScorer{err: fmt.Errorf("%w: no candidates", apperrors.ErrInsufficientData)}
	ledger, svc := recommendationFixture(scorer)
	itemID := ledger.items[0].ID

	entry, err := svc.Alternatives(context.Background(), itemID, false)
	require.NoError(t, err)
	assert.True(t, entry.Degraded)
	// The fallback still found the same-category in-stock pick.
	require.Len(t, entry.Alternatives, 1)
	assert.Equal(t, ledger.items[1].ID, entry.Alternatives[0].CandidateID)
}

func TestSuggestionsUseConfiguredThreshold(t *testing.T) {
	scorer := &countingScorer{}
	ledger, svc := recommendationFixture(scorer)
	var projectID uuid.UUID
	for id := range ledger.projects {
		projectID = id
	}

	entry, err := svc.Suggestions(context.Background(), projectID, nil, false)
	require.NoError(t, err)
	require.Len(t, entry.Suggestions, 1)
	assert.Equal(t, int64(1), scorer.suggCalls.Load())

	// Cached on the second default-threshold call.
	_, err = svc.Suggestions(context.Background(), projectID, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), scorer.suggCalls.Load())
}

func TestSuggestionsCustomThresholdBypassesCache(t *testing.T) {
	scorer := &countingScorer{}
	ledger, svc := recommendationFixture(scorer)
	var projectID uuid.UUID
	for id := range ledger.projects {
		projectID = id
	}

	_, err := svc.Suggestions(context.Background(), projectID, nil, false)
	require.NoError(t, err)

	custom := 0.1
	_, err = svc.Suggestions(context.Background(), projectID, &custom, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), scorer.suggCalls.Load())

	// The custom result did not overwrite the shared entry.
	_, err = svc.Suggestions(context.Background(), projectID, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), scorer.suggCalls.Load())

	bad := 1.5
	_, err = svc.Suggestions(context.Background(), projectID, &bad, false)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSuggestionsUnknownProject(t *testing.T) {
	_, svc := recommendationFixture(&countingScorer{})
	_, err := svc.Suggestions(context.Background(), uuid.New(), nil, false)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
