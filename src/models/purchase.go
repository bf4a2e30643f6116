package models

type LimitType string

const (
	LimitQuantityBased LimitType = "quantity_based"
	LimitFixed         LimitType = "fixed"
)

// SharingConfig is the per-variation sharing setup carried on a purchase line.
type SharingConfig struct {
	Enabled    bool      `json:"enabled"`
	LimitType  LimitType `json:"limit_type"`
	FixedLimit int       `json:"fixed_limit"`
	GroupLabel string    `json:"group_label,omitempty"`
}

type PurchaseItem struct {
	ProductID   int64         `json:"product_id"`
	VariationID int64         `json:"variation_id"`
	ProductName string        `json:"product_name"`
	Quantity    int           `json:"quantity"`
	Sharing     SharingConfig `json:"sharing"`
}

// Capacity is the number of subaccount seats the line grants.
func (i PurchaseItem) Capacity() int {
	switch i.Sharing.LimitType {
	case LimitQuantityBased:
		return max(i.Quantity, 0)
	case LimitFixed:
		return max(i.Sharing.FixedLimit, 0)
	default:
		return 0
	}
}

// EffectiveVariationID treats simple products as their own variation.
func (i PurchaseItem) EffectiveVariationID() int64 {
	if i.VariationID != 0 {
		return i.VariationID
	}
	return i.ProductID
}

type Buyer struct {
	UserID      int64  `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// PurchaseCompleted is the commerce event that creates groups.
type PurchaseCompleted struct {
	EventID string         `json:"event_id,omitempty"`
	OrderID int64          `json:"order_id,omitempty"`
	Buyer   Buyer          `json:"buyer"`
	Items   []PurchaseItem `json:"items"`
}
