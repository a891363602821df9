// Package models contains domain types for partsbench-engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ItemStatus describes where a component currently sits in its lifecycle.
type ItemStatus string

const (
	StatusInStock   ItemStatus = "in-stock"
	StatusWishlist  ItemStatus = "wishlist"
	StatusRequired  ItemStatus = "required"
	StatusSalvaged  ItemStatus = "salvaged"
	StatusReturned  ItemStatus = "returned"
	StatusDiscarded ItemStatus = "discarded"
	StatusGivenAway ItemStatus = "given-away"
)

// ValidItemStatus reports whether s is one of the known item statuses.
func ValidItemStatus(s ItemStatus) bool {
	switch s {
	case StatusInStock, StatusWishlist, StatusRequired, StatusSalvaged,
		StatusReturned, StatusDiscarded, StatusGivenAway:
		return true
	}
	return false
}

// UsageRecord notes that a project holds some quantity of this item.
type UsageRecord struct {
	ProjectID   uuid.UUID `json:"project_id"`
	ProjectName string    `json:"project_name"`
	Quantity    int       `json:"quantity"`
}

// InventoryItem is a physical component in the user's inventory.
// Quantity is total on-hand stock; Allocated is the portion reserved by
// projects. The ledger maintains 0 <= Allocated <= Quantity at all times.
type InventoryItem struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Category  string        `json:"category,omitempty"`
	Quantity  int           `json:"quantity"`
	Allocated int           `json:"allocated"`
	Status    ItemStatus    `json:"status"`
	UnitPrice *float64      `json:"unit_price,omitempty"`
	UsedIn    []UsageRecord `json:"used_in,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Available returns the unreserved on-hand quantity.
func (i *InventoryItem) Available() int {
	return i.Quantity - i.Allocated
}

// Clone returns a deep copy so snapshots handed to scorers and subscribers
// never alias ledger-owned state.
func (i *InventoryItem) Clone() *InventoryItem {
	c := *i
	if i.UnitPrice != nil {
		price := *i.UnitPrice
		c.UnitPrice = &price
	}
	if i.UsedIn != nil {
		c.UsedIn = make([]UsageRecord, len(i.UsedIn))
		copy(c.UsedIn, i.UsedIn)
	}
	return &c
}

// ItemSpec carries the caller-supplied fields for creating an item.
// Identity and allocation bookkeeping are assigned by the ledger.
type ItemSpec struct {
	Name      string     `json:"name"`
	Category  string     `json:"category,omitempty"`
	Quantity  int        `json:"quantity"`
	Status    ItemStatus `json:"status,omitempty"`
	UnitPrice *float64   `json:"unit_price,omitempty"`
}
