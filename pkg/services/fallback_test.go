package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsbench/partsbench-engine/pkg/models"
)

func TestFallbackAlternativesFavorCategory(t *testing.T) {
	advisor := NewFallbackAdvisor()

	source := item("servo motor", "motor", 1, 1)
	same := item("dc motor", "motor", 5, 0)
	other := item("lipo battery", "power", 5, 0)
	depleted := item("stepper motor", "motor", 2, 2)

	picks := advisor.Alternatives(source, []*models.InventoryItem{source, same, other, depleted})
	require.Len(t, picks, 1)
	assert.Equal(t, same.ID, picks[0].CandidateID)
	assert.Equal(t, altBaseScore, picks[0].CompatibilityScore)
	assert.Contains(t, picks[0].Explanation, "degraded")
}

func TestFallbackAlternativesWithoutCategoryTakeAnything(t *testing.T) {
	advisor := NewFallbackAdvisor()

	source := item("mystery part", "", 1, 1)
	var pool []*models.InventoryItem
	pool = append(pool, source)
	for i := 0; i < fallbackMaxResults+3; i++ {
		pool = append(pool, item("filler", "misc", 4, 0))
	}

	picks := advisor.Alternatives(source, pool)
	assert.Len(t, picks, fallbackMaxResults)
}

func TestFallbackSuggestionsOrderByUsage(t *testing.T) {
	advisor := NewFallbackAdvisor()

	popular := item("jumper wires", "wiring", 10, 0)
	popular.UsedIn = []models.UsageRecord{
		{ProjectID: uuid.New(), Quantity: 1},
		{ProjectID: uuid.New(), Quantity: 2},
		{ProjectID: uuid.New(), Quantity: 1},
	}
	cheap := priced(item("resistor kit", "passive", 100, 0), 0.02)
	plain := item("standoff", "hardware", 3, 0)

	picks := advisor.Suggestions([]*models.InventoryItem{plain, cheap, popular})
	require.Len(t, picks, 3)
	assert.Equal(t, popular.ID, picks[0].ComponentID)
	assert.Contains(t, picks[0].Reason, "frequently used (3 projects)")
	for _, pick := range picks {
		assert.Equal(t, fallbackConfidence, pick.Confidence)
		assert.Contains(t, pick.Reason, "degraded")
	}
}

func TestFallbackInsights(t *testing.T) {
	advisor := NewFallbackAdvisor()

	low := item("esp32 board", "microcontroller", 2, 0)
	low.UsedIn = []models.UsageRecord{{ProjectID: uuid.New(), Quantity: 1}}
	stocked := priced(item("m3 screws", "hardware", 200, 0), 0.01)

	insights := advisor.Insights([]*models.InventoryItem{low, stocked})
	require.NotEmpty(t, insights)

	joined := ""
	for _, line := range insights {
		joined += line + "\n"
	}
	assert.Contains(t, joined, "running low")
	assert.Contains(t, joined, "esp32 board")
	assert.Contains(t, joined, "microcontroller")
	assert.Contains(t, joined, "$2.00")
}

func TestFallbackInsightsEmptyInventory(t *testing.T) {
	advisor := NewFallbackAdvisor()
	insights := advisor.Insights(nil)
	require.Len(t, insights, 1)
	assert.Contains(t, insights[0], "healthy")
}
