package models

import (
	"time"

	"github.com/google/uuid"
)

// PriceComparison contrasts the source component's unit price with a
// candidate's. Savings is positive when the alternative is cheaper.
type PriceComparison struct {
	Original    float64 `json:"original"`
	Alternative float64 `json:"alternative"`
	Savings     float64 `json:"savings"`
}

// Alternative is one ranked substitute suggestion for a source component.
type Alternative struct {
	CandidateID        uuid.UUID        `json:"candidate_id"`
	Name               string           `json:"name"`
	CompatibilityScore int              `json:"compatibility_score"`
	Available          int              `json:"available"`
	Price              *PriceComparison `json:"price,omitempty"`
	Explanation        string           `json:"explanation"`
}

// ComponentSuggestion is one ranked part pick for a project.
type ComponentSuggestion struct {
	ComponentID uuid.UUID `json:"component_id"`
	Name        string    `json:"name"`
	Category    string    `json:"category,omitempty"`
	Confidence  float64   `json:"confidence"`
	Available   int       `json:"available"`
	Reason      string    `json:"reason"`
}

// RecommendationEntry is a cached recommendation result. Entries live only
// for the process lifetime; invalidation is mutation-driven, not TTL-driven.
type RecommendationEntry struct {
	Alternatives []Alternative         `json:"alternatives,omitempty"`
	Suggestions  []ComponentSuggestion `json:"suggestions,omitempty"`
	ComputedAt   time.Time             `json:"computed_at"`
	Degraded     bool                  `json:"degraded,omitempty"`
}
