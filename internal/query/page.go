package query

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Defaults holds the pagination policy.
type Defaults struct {
	Limit    int
	MaxLimit int
}

// DefaultPaging is used when no policy is configured.
var DefaultPaging = Defaults{Limit: 10, MaxLimit: 100}

// Page is a normalized 1-based page request.
type Page struct {
	Number int
	Limit  int
}

// ParsePage normalizes raw page/limit strings. Out-of-range or non-numeric
// values are clamped rather than rejected.
func ParsePage(page, limit string, d Defaults) Page {
	if d.Limit <= 0 {
		d.Limit = DefaultPaging.Limit
	}
	if d.MaxLimit <= 0 {
		d.MaxLimit = DefaultPaging.MaxLimit
	}
	if d.Limit > d.MaxLimit {
		d.Limit = d.MaxLimit
	}

	p := Page{Number: 1, Limit: d.Limit}
	if n, ok := positiveInt(limit); ok {
		p.Limit = min(n, d.MaxLimit)
	}
	if n, ok := positiveInt(page); ok {
		// Keep Offset within int so far-away pages stay empty.
		p.Number = min(n, math.MaxInt/p.Limit)
	}
	return p
}

// positiveInt parses s as a positive integer. Values past the int range
// saturate at math.MaxInt.
func positiveInt(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		if errors.Is(err, strconv.ErrRange) && n > 0 {
			return math.MaxInt, true
		}
		return 0, false
	}
	return n, n > 0
}

// Offset is the number of records to skip.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

// TotalPages returns ceil(total/limit), or 0 when there is nothing to page.
func TotalPages(total int64, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
