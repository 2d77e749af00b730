package shared

import (
	"net/http"
	"strconv"
	"strings"
)

// ListFilters represents standard list filters.
type ListFilters struct {
	Page    int
	Limit   int
	Search  string
	SortBy  string
	SortDir string

	// Products only.
	Type string
}

// ParseListFilters reads page, limit, search, sort, dir and type query values.
func ParseListFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	f := ListFilters{
		Page:    page,
		Limit:   limit,
		Search:  strings.TrimSpace(q.Get("search")),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
		Type:    strings.ToUpper(strings.TrimSpace(q.Get("type"))),
	}
	return f.Normalize()
}

// Normalize applies default paging.
func (f ListFilters) Normalize() ListFilters {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.SortDir != SortDesc {
		f.SortDir = SortAsc
	}
	return f
}

// Offset returns the row offset for the page.
func (f ListFilters) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// Paginate slices items to the page described by f.
func Paginate[T any](items []T, f ListFilters) []T {
	start := f.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + f.Limit
	if f.Limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// ListResponse is the JSON envelope of list endpoints.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}
