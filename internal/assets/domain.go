package assets

import (
	"math"
	"time"

	"github.com/atlas-ops/atlas-ops/internal/access"
)

// Status enumerates the asset lifecycle states.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusAssigned    Status = "assigned"
	StatusMaintenance Status = "maintenance"
	StatusRetired     Status = "retired"
)

// Valid reports whether the status is one of the lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusAssigned, StatusMaintenance, StatusRetired:
		return true
	}
	return false
}

// Asset is a tracked physical or software asset.
type Asset struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Category         string     `json:"category"`
	SerialNumber     string     `json:"serialNumber,omitempty"`
	Status           Status     `json:"status"`
	PurchasePrice    float64    `json:"purchasePrice"`
	PurchaseDate     *time.Time `json:"purchaseDate,omitempty"`
	WarrantyExpiry   *time.Time `json:"warrantyExpiry,omitempty"`
	DepreciationRate float64    `json:"depreciationRate"`
	Location         string     `json:"location,omitempty"`
	Description      string     `json:"description,omitempty"`
	CreatedBy        int64      `json:"createdBy"`
	AssignedTo       *int64     `json:"assignedTo,omitempty"`
	CurrentValue     float64    `json:"currentValue"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// ComputeCurrentValue derives the present value from the purchase price,
// the yearly declining-balance rate (percent) and the asset age. Assets
// without a purchase date keep their purchase price.
func (a *Asset) ComputeCurrentValue(now time.Time) float64 {
	if a.PurchaseDate == nil || a.PurchasePrice <= 0 || a.DepreciationRate <= 0 {
		return a.PurchasePrice
	}
	years := now.Sub(*a.PurchaseDate).Hours() / (24 * 365.25)
	if years <= 0 {
		return a.PurchasePrice
	}
	value := a.PurchasePrice * math.Pow(1-a.DepreciationRate/100, years)
	if value < 0 {
		return 0
	}
	return math.Round(value*100) / 100
}

// Object is the relation snapshot used for authorization decisions.
func (a *Asset) Object() access.Object {
	obj := access.Object{
		Type:    access.ResourceAssets,
		OwnerID: a.CreatedBy,
	}
	if a.AssignedTo != nil {
		obj.AssigneeID = *a.AssignedTo
	}
	return obj
}

// MaintenanceRecord is one service event in an asset's history.
type MaintenanceRecord struct {
	ID          int64     `json:"id"`
	AssetID     int64     `json:"assetId"`
	Description string    `json:"description"`
	Cost        float64   `json:"cost"`
	PerformedBy int64     `json:"performedBy"`
	PerformedAt time.Time `json:"performedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TagPayload is the machine-readable content of a printed asset tag. Image
// encoding happens client side.
type TagPayload struct {
	AssetID      int64  `json:"assetId"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	SerialNumber string `json:"serialNumber,omitempty"`
	Status       Status `json:"status"`
}

// ListQuery carries the caller-supplied list filters.
type ListQuery struct {
	Category string
	Status   string
	Search   string
	Page     int
	PerPage  int
}

// CreateInput carries a new asset request.
type CreateInput struct {
	Name             string
	Category         string
	SerialNumber     string
	PurchasePrice    float64
	PurchaseDate     *time.Time
	WarrantyExpiry   *time.Time
	DepreciationRate float64
	Location         string
	Description      string
}

// UpdateInput carries an asset update. Nil fields stay unchanged.
type UpdateInput struct {
	Name             *string
	Category         *string
	SerialNumber     *string
	Status           *Status
	PurchasePrice    *float64
	PurchaseDate     *time.Time
	WarrantyExpiry   *time.Time
	DepreciationRate *float64
	Location         *string
	Description      *string
}

// Stats aggregates the register for the dashboard.
type Stats struct {
	Total              int            `json:"total"`
	ByStatus           map[string]int `json:"byStatus"`
	ByCategory         map[string]int `json:"byCategory"`
	TotalPurchaseValue float64        `json:"totalPurchaseValue"`
	WarrantyExpiring   int            `json:"warrantyExpiringSoon"`
}
