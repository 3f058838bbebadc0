package domain

import "math"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps Page*MaxPageSize, and so every offset, within a 32-bit integer.
	MaxPage = math.MaxInt32 / MaxPageSize
)

// PageRequest is a 1-based page selection. Out-of-range values are clamped, never rejected.
type PageRequest struct {
	Page     int
	PageSize int
}

func (p PageRequest) Normalize() PageRequest {
	page := min(max(p.Page, 1), MaxPage)
	size := p.PageSize
	if size == 0 {
		size = DefaultPageSize
	}
	size = min(max(size, 1), MaxPageSize)
	return PageRequest{Page: page, PageSize: size}
}

func (p PageRequest) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

// Page is one slice of an ordered result set.
type Page[T any] struct {
	Items    []T
	Page     int
	PageSize int
	Total    int64
	// IntegrityWarnings counts rows in scope that are neither pending nor closed.
	IntegrityWarnings int64
}

func (p Page[T]) Pages() int64 {
	if p.PageSize <= 0 || p.Total == 0 {
		return 0
	}
	size := int64(p.PageSize)
	return (p.Total + size - 1) / size
}
