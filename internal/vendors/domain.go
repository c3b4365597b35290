package vendors

import (
	"time"

	"github.com/atlas-ops/atlas-ops/internal/access"
)

// Vendor is a supplier the organisation buys from.
type Vendor struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Website   string    `json:"website,omitempty"`
	Address   string    `json:"address,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedBy int64     `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Object is the relation snapshot used for authorization decisions. Vendor
// grants are never row-scoped, so only the owner relation is carried.
func (v *Vendor) Object() access.Object {
	return access.Object{
		Type:    access.ResourceVendors,
		OwnerID: v.CreatedBy,
	}
}

// Contact is a named person at a vendor.
type Contact struct {
	ID       int64  `json:"id"`
	VendorID int64  `json:"vendorId"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Contract is an agreement with a vendor.
type Contract struct {
	ID        int64      `json:"id"`
	VendorID  int64      `json:"vendorId"`
	Title     string     `json:"title"`
	Value     float64    `json:"value"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// ListQuery carries the caller-supplied list filters.
type ListQuery struct {
	Category string
	IsActive *bool
	Search   string
	Page     int
	PerPage  int
}

// VendorInput carries a create or full-update request.
type VendorInput struct {
	Name     string
	Category string
	Email    string
	Phone    string
	Website  string
	Address  string
	Notes    string
}

// Stats aggregates the registry for the dashboard.
type Stats struct {
	Total             int            `json:"total"`
	Active            int            `json:"active"`
	ByCategory        map[string]int `json:"byCategory"`
	ContractsExpiring int            `json:"contractsExpiringSoon"`
	TotalContracted   float64        `json:"totalContractedValue"`
}
