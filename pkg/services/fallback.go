package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/partsbench/partsbench-engine/pkg/models"
)

// Fallback constants. The advisor runs when real scoring cannot (sparse
// pools, unreachable upstream), so its picks carry deliberately low,
// uniform confidence.
const (
	fallbackScore      = altBaseScore // base compatibility, no bonuses
	fallbackConfidence = 0.25
	fallbackMaxResults = 5
	lowStockWatermark  = 3
)

// FallbackAdvisor produces degraded recommendations from local ledger data
// only. Used by the recommendation service when the scorer reports
// insufficient data and by the insight service when the LLM is unreachable.
type FallbackAdvisor struct{}

// NewFallbackAdvisor creates the advisor.
func NewFallbackAdvisor() *FallbackAdvisor {
	return &FallbackAdvisor{}
}

// Alternatives returns in-stock picks favoring the source's category,
// without scoring bonuses. Deterministic: available desc, then id.
func (a *FallbackAdvisor) Alternatives(source *models.InventoryItem, pool []*models.InventoryItem) []models.Alternative {
	var picks []models.Alternative
	for _, candidate := range pool {
		if candidate.ID == source.ID || candidate.Available() <= 0 {
			continue
		}
		if source.Category != "" && !strings.EqualFold(candidate.Category, source.Category) {
			continue
		}
		picks = append(picks, models.Alternative{
			CandidateID:        candidate.ID,
			Name:               candidate.Name,
			CompatibilityScore: fallbackScore,
			Available:          candidate.Available(),
			Explanation:        "in-stock pick (degraded result)",
		})
	}

	sort.Slice(picks, func(i, j int) bool {
		if picks[i].Available != picks[j].Available {
			return picks[i].Available > picks[j].Available
		}
		return picks[i].CandidateID.String() < picks[j].CandidateID.String()
	})

	if len(picks) > fallbackMaxResults {
		picks = picks[:fallbackMaxResults]
	}
	return picks
}

// Suggestions returns trending (most used) and budget (cheapest) in-stock
// picks when keyword scoring is unavailable.
func (a *FallbackAdvisor) Suggestions(pool []*models.InventoryItem) []models.ComponentSuggestion {
	var picks []models.ComponentSuggestion
	usageByID := make(map[string]int)
	for _, candidate := range pool {
		if candidate.Available() <= 0 {
			continue
		}

		reason := "in stock"
		switch {
		case len(candidate.UsedIn) >= 2:
			reason = fmt.Sprintf("frequently used (%d projects)", len(candidate.UsedIn))
		case candidate.UnitPrice != nil && *candidate.UnitPrice > 0:
			reason = fmt.Sprintf("budget pick ($%.2f)", *candidate.UnitPrice)
		}

		usageByID[candidate.ID.String()] = len(candidate.UsedIn)
		picks = append(picks, models.ComponentSuggestion{
			ComponentID: candidate.ID,
			Name:        candidate.Name,
			Category:    candidate.Category,
			Confidence:  fallbackConfidence,
			Available:   candidate.Available(),
			Reason:      reason + " (degraded result)",
		})
	}

	sort.Slice(picks, func(i, j int) bool {
		ui, uj := usageByID[picks[i].ComponentID.String()], usageByID[picks[j].ComponentID.String()]
		if ui != uj {
			return ui > uj
		}
		if picks[i].Available != picks[j].Available {
			return picks[i].Available > picks[j].Available
		}
		return picks[i].ComponentID.String() < picks[j].ComponentID.String()
	})

	if len(picks) > fallbackMaxResults {
		picks = picks[:fallbackMaxResults]
	}
	return picks
}

// Insights produces heuristic purchasing insights from a stats snapshot.
func (a *FallbackAdvisor) Insights(items []*models.InventoryItem) []string {
	var insights []string

	var lowStock []string
	totalValue := 0.0
	usage := map[string]int{}
	for _, item := range items {
		if item.Status == models.StatusInStock && item.Available() > 0 && item.Available() <= lowStockWatermark {
			lowStock = append(lowStock, item.Name)
		}
		if item.UnitPrice != nil {
			totalValue += *item.UnitPrice * float64(item.Quantity)
		}
		if item.Category != "" {
			usage[item.Category] += len(item.UsedIn)
		}
	}

	if len(lowStock) > 0 {
		sort.Strings(lowStock)
		insights = append(insights,
			fmt.Sprintf("%d components are running low: %s", len(lowStock), strings.Join(lowStock, ", ")))
	}

	if topCategory := maxKey(usage); topCategory != "" {
		insights = append(insights,
			fmt.Sprintf("most active category is %s; consider stocking spares", topCategory))
	}

	if totalValue > 0 {
		insights = append(insights,
			fmt.Sprintf("estimated inventory value: $%.2f", totalValue))
	}

	if len(insights) == 0 {
		insights = append(insights, "inventory looks healthy; no purchasing action needed")
	}
	return insights
}

// maxKey returns the key with the largest positive value, ties broken
// lexically for determinism.
func maxKey(counts map[string]int) string {
	best := ""
	bestCount := 0
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if counts[k] > bestCount {
			best = k
			bestCount = counts[k]
		}
	}
	return best
}
