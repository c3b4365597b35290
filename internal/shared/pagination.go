package shared

import (
	"math"
	"net/http"
	"strconv"
)

const defaultPerPage = 20

// PageRequest carries the requested page window of a list endpoint.
type PageRequest struct {
	Page    int
	PerPage int
}

// PageRequestFromQuery parses page/limit query parameters, applying the
// console defaults.
func PageRequestFromQuery(r *http.Request) PageRequest {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if perPage <= 0 || perPage > 100 {
		perPage = defaultPerPage
	}
	return PageRequest{Page: page, PerPage: perPage}
}

// Offset returns the row offset of the requested page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}
