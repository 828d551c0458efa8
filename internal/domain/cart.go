package domain

import "time"

// CartEntry holds the number of units of one product reserved in a user's cart.
type CartEntry struct {
	UnitCount int `json:"unit_count"`
}

// Cart is the per-user collection of reserved product quantities awaiting checkout.
type Cart struct {
	Entries    map[int64]*CartEntry `json:"entries_by_product_id"`
	LastUpdate time.Time            `json:"last_update"`
}

// NewCart returns an empty cart stamped with the given time.
func NewCart(now time.Time) *Cart {
	return &Cart{
		Entries:    make(map[int64]*CartEntry),
		LastUpdate: now,
	}
}

// Clone returns a deep copy of the cart, safe to hand out after locks are released.
func (c *Cart) Clone() *Cart {
	out := &Cart{
		Entries:    make(map[int64]*CartEntry, len(c.Entries)),
		LastUpdate: c.LastUpdate,
	}
	for productID, entry := range c.Entries {
		out.Entries[productID] = &CartEntry{UnitCount: entry.UnitCount}
	}
	return out
}

// ProductState tracks availability counters for a single product.
// TotalCount is the number of units owned system-wide; AlreadyPut is how many
// of them currently sit in users' carts.
type ProductState struct {
	ProductID  int64 `json:"product_id"`
	TotalCount int   `json:"total_count"`
	AlreadyPut int   `json:"already_put"`
}

// State is the full snapshot exchanged over the bulk-replace endpoint.
type State struct {
	CartByUserID   map[int64]*Cart         `json:"cart_by_user_id"`
	StateByProduct map[int64]*ProductState `json:"state_by_product"`
}
