package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProductCategory selects the purchase flow: batteries go through the full
// purchase path, vehicles through the deposit path.
type ProductCategory string

const (
	CategoryBattery ProductCategory = "BATTERY"
	CategoryVehicle ProductCategory = "VEHICLE"
)

// ProductStatus is owned by the catalog; the order machine flips it as a
// side effect of the order lifecycle (active -> sold/deposit -> active).
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "ACTIVE"
	ProductStatusDeposit  ProductStatus = "DEPOSIT"
	ProductStatusSold     ProductStatus = "SOLD"
	ProductStatusInactive ProductStatus = "INACTIVE"
)

// Product is the slice of the catalog entry the order core needs:
// current price, category and availability.
type Product struct {
	ID            uuid.UUID       `json:"id"`
	SellerID      uuid.UUID       `json:"seller_id"`
	Name          string          `json:"name"`
	Category      ProductCategory `json:"category"`
	Price         int64           `json:"price"`
	DepositAmount int64           `json:"deposit_amount"` // Vehicle flow only
	Status        ProductStatus   `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Available reports whether the product can be bought or deposited on.
func (p *Product) Available() bool {
	return p.Status == ProductStatusActive
}
