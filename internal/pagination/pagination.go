// Package pagination implements keyset listing: the cursor is the last id
// the client has seen and pages are ordered by ascending id.
package pagination

import (
	"net/url"
	"strconv"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

type Page struct {
	Cursor int64
	Limit  int
}

// Fetch is the number of rows to read: one extra tells whether more exist.
func (p Page) Fetch() int { return p.Limit + 1 }

type Info struct {
	Cursor     *int64 `json:"cursor"`
	Limit      int    `json:"limit"`
	NextCursor *int64 `json:"nextCursor"`
	HasMore    bool   `json:"hasMore"`
}

// FromQuery reads cursor and limit. Limits above MaxLimit are capped.
func FromQuery(q url.Values) (Page, error) {
	p := Page{Limit: DefaultLimit}
	if v := q.Get("cursor"); v != "" {
		c, err := strconv.ParseInt(v, 10, 64)
		if err != nil || c < 0 {
			return Page{}, apperr.Validation("cursor must be a non-negative integer")
		}
		p.Cursor = c
	}
	if v := q.Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l <= 0 {
			return Page{}, apperr.Validation("limit must be a positive integer")
		}
		p.Limit = l
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p, nil
}

// Trim cuts the extra row read by Fetch and builds the page info.
func Trim[T any](rows []T, p Page, id func(T) int64) ([]T, Info) {
	info := Info{Limit: p.Limit}
	if p.Cursor > 0 {
		c := p.Cursor
		info.Cursor = &c
	}
	if len(rows) > p.Limit {
		rows = rows[:p.Limit]
		info.HasMore = true
	}
	if info.HasMore && len(rows) > 0 {
		next := id(rows[len(rows)-1])
		info.NextCursor = &next
	}
	return rows, info
}
