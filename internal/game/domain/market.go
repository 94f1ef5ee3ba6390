package domain

// MarketItem is a purchasable item. Effects, when present, are applied
// through the regular event pipeline when the item is used. Consumable
// defaults to true when nil.
type MarketItem struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Price      float64        `json:"price"`
	Effects    map[string]any `json:"effects,omitempty"`
	Consumable *bool          `json:"consumable,omitempty"`
	UseText    string         `json:"use_text,omitempty"`
}

// IsConsumable reports whether using the item removes it from the inventory.
func (m MarketItem) IsConsumable() bool {
	return m.Consumable == nil || *m.Consumable
}
