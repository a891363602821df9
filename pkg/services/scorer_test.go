package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsbench/partsbench-engine/pkg/apperrors"
	"github.com/partsbench/partsbench-engine/pkg/models"
)

func item(name, category string, qty, allocated int) *models.InventoryItem {
	return &models.InventoryItem{
		ID:        uuid.New(),
		Name:      name,
		Category:  category,
		Quantity:  qty,
		Allocated: allocated,
		Status:    models.StatusInStock,
	}
}

func priced(i *models.InventoryItem, price float64) *models.InventoryItem {
	i.UnitPrice = &price
	return i
}

func TestFindAlternativesScoring(t *testing.T) {
	scorer := NewHeuristicScorer()

	source := priced(item("SG90 servo motor", "motor", 2, 2), 3.0)
	sameCategory := priced(item("MG996R servo motor", "motor", 5, 0), 3.2)
	otherCategory := item("ceramic capacitor", "passive", 100, 0)

	alts, err := scorer.FindAlternatives(source, []*models.InventoryItem{source, sameCategory, otherCategory}, nil)
	require.NoError(t, err)
	require.Len(t, alts, 2)

	// Category, shared tokens and price proximity all fired for the servo.
	assert.Equal(t, sameCategory.ID, alts[0].CandidateID)
	assert.Greater(t, alts[0].CompatibilityScore, altBaseScore+altCategoryBonus)
	assert.Contains(t, alts[0].Explanation, "same category")
	require.NotNil(t, alts[0].Price)
	assert.InDelta(t, -0.2, alts[0].Price.Savings, 0.0001)

	// Nothing fired for the capacitor.
	assert.Equal(t, otherCategory.ID, alts[1].CandidateID)
	assert.Equal(t, altBaseScore, alts[1].CompatibilityScore)
	assert.Equal(t, "general match", alts[1].Explanation)
}

func TestFindAlternativesDeterministic(t *testing.T) {
	scorer := NewHeuristicScorer()

	source := item("stepper driver", "motor", 1, 1)
	pool := []*models.InventoryItem{
		source,
		item("a4988 stepper driver", "motor", 4, 0),
		item("tmc2209 stepper driver", "motor", 4, 0),
		item("drv8825 stepper driver", "motor", 2, 0),
	}

	first, err := scorer.FindAlternatives(source, pool, nil)
	require.NoError(t, err)
	second, err := scorer.FindAlternatives(source, pool, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFindAlternativesExcludesSourceAndOutOfStock(t *testing.T) {
	scorer := NewHeuristicScorer()

	source := item("relay module", "switching", 3, 0)
	depleted := item("solid state relay", "switching", 2, 2)

	_, err := scorer.FindAlternatives(source, []*models.InventoryItem{source, depleted}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientData)
}

func TestFindAlternativesCoUsageBonus(t *testing.T) {
	scorer := NewHeuristicScorer()

	completedID := uuid.New()
	activeID := uuid.New()
	completed := map[uuid.UUID]bool{completedID: true}

	source := item("wheel encoder", "sensor", 2, 0)
	source.UsedIn = []models.UsageRecord{
		{ProjectID: completedID, Quantity: 1},
		{ProjectID: activeID, Quantity: 1},
	}
	partner := item("hall sensor", "sensor", 3, 0)
	partner.UsedIn = []models.UsageRecord{
		{ProjectID: completedID, Quantity: 1},
		{ProjectID: activeID, Quantity: 1},
	}
	stranger := item("flex sensor", "sensor", 3, 0)

	withBonus, err := scorer.FindAlternatives(source, []*models.InventoryItem{partner, stranger}, completed)
	require.NoError(t, err)
	without, err := scorer.FindAlternatives(source, []*models.InventoryItem{partner, stranger}, nil)
	require.NoError(t, err)

	// Only the completed project counts, worth exactly one co-usage step.
	assert.Equal(t, without[0].CompatibilityScore+altCoUsageBonus, withBonus[0].CompatibilityScore)
	assert.Contains(t, withBonus[0].Explanation, "completed projects")
}

func TestFindAlternativesTieBreaks(t *testing.T) {
	scorer := NewHeuristicScorer()

	source := item("spacer", "hardware", 1, 1)
	small := item("nylon standoff", "hardware", 2, 0)
	large := item("brass standoff", "hardware", 9, 0)

	alts, err := scorer.FindAlternatives(source, []*models.InventoryItem{small, large}, nil)
	require.NoError(t, err)
	require.Len(t, alts, 2)
	assert.Equal(t, alts[0].CompatibilityScore, alts[1].CompatibilityScore)
	assert.Equal(t, large.ID, alts[0].CandidateID)
}

func TestSuggestForProjectKeywordMatching(t *testing.T) {
	scorer := NewHeuristicScorer()

	servo := item("servo motor", "motor", 4, 0)
	battery := item("lipo battery pack", "power", 2, 0)
	capacitor := item("film capacitor", "passive", 50, 0)

	suggestions, err := scorer.SuggestForProject("robotics", "small rover with battery power",
		[]*models.InventoryItem{servo, battery, capacitor}, 0.2)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)

	ids := make(map[uuid.UUID]float64)
	for _, s := range suggestions {
		ids[s.ComponentID] = s.Confidence
	}
	assert.Contains(t, ids, servo.ID)
	assert.Contains(t, ids, battery.ID)
	// The capacitor matches no robotics keyword and stays below 0.2.
	assert.NotContains(t, ids, capacitor.ID)
}

func TestSuggestForProjectThreshold(t *testing.T) {
	scorer := NewHeuristicScorer()
	pool := []*models.InventoryItem{item("servo motor", "motor", 4, 0)}

	low, err := scorer.SuggestForProject("robotics", "", pool, 0.1)
	require.NoError(t, err)
	assert.Len(t, low, 1)

	high, err := scorer.SuggestForProject("robotics", "", pool, 0.9)
	require.NoError(t, err)
	assert.Empty(t, high)
}

func TestSuggestForProjectUnknownKindUsesGenericKeywords(t *testing.T) {
	scorer := NewHeuristicScorer()
	pool := []*models.InventoryItem{item("toggle switch", "switching", 6, 0)}

	suggestions, err := scorer.SuggestForProject("woodworking", "", pool, 0.2)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Contains(t, suggestions[0].Reason, "switch")
}

func TestSuggestForProjectNoStock(t *testing.T) {
	scorer := NewHeuristicScorer()
	pool := []*models.InventoryItem{item("servo motor", "motor", 2, 2)}

	_, err := scorer.SuggestForProject("robotics", "", pool, 0.2)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientData)
}

func TestSuggestForProjectCapsResults(t *testing.T) {
	scorer := NewHeuristicScorer()

	var pool []*models.InventoryItem
	for i := 0; i < maxSuggestions+4; i++ {
		pool = append(pool, item("servo motor", "motor", 3, 0))
	}

	suggestions, err := scorer.SuggestForProject("robotics", "", pool, 0.1)
	require.NoError(t, err)
	assert.Len(t, suggestions, maxSuggestions)
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("MG996R Servo-Motor, 12x")
	assert.True(t, tokens["mg996r"])
	assert.True(t, tokens["servo"])
	assert.True(t, tokens["motor"])
	assert.True(t, tokens["12x"])
	assert.False(t, tokens["x"])
}
