// Package pagination normalizes paging, sorting and filter parameters and
// assembles page envelopes.
package pagination

import (
	"fmt"
	"strconv"
	"strings"

	"scribe/internal/models"
)

const (
	DefaultPageNo   = 0
	DefaultPageSize = 10
	DefaultSortBy   = "id"
	DefaultSortDir  = "desc"
	MaxPageSizeCap  = 50
)

// sortColumns maps accepted sortBy values onto column names.
var sortColumns = map[string]string{
	"id":        "id",
	"title":     "title",
	"createdAt": "created_at",
}

// Raw holds the parameters exactly as received. Empty strings mean "use the default".
type Raw struct {
	PageNo   string
	PageSize string
	SortBy   string
	SortDir  string
	Title    string
	Content  string
}

// Query is a validated page request.
type Query struct {
	PageNo   int
	PageSize int
	SortBy   string
	Desc     bool
}

// Filter holds case-insensitive substring filters. Empty fields match everything.
type Filter struct {
	Title   string
	Content string
}

// Offset returns the number of rows to skip.
func (q Query) Offset() int {
	return q.PageNo * q.PageSize
}

// Column returns the SQL column for SortBy.
func (q Query) Column() string {
	return sortColumns[q.SortBy]
}

// OrderClause returns an ORDER BY expression with id as tiebreaker.
func (q Query) OrderClause() string {
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	col := q.Column()
	if col == "id" {
		return "id " + dir
	}
	return fmt.Sprintf("%s %s, id %s", col, dir, dir)
}

// Normalize validates raw against maxPageSize, which is clamped to MaxPageSizeCap.
func Normalize(raw Raw, maxPageSize int) (Query, Filter, error) {
	if maxPageSize <= 0 || maxPageSize > MaxPageSizeCap {
		maxPageSize = MaxPageSizeCap
	}

	q := Query{PageNo: DefaultPageNo, PageSize: DefaultPageSize, SortBy: DefaultSortBy, Desc: true}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}

	if s := strings.TrimSpace(raw.PageNo); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Query{}, Filter{}, models.NewValidationError("Page number must be an integer.")
		}
		if n < 0 {
			return Query{}, Filter{}, models.NewValidationError("Page number cannot be less than zero.")
		}
		q.PageNo = n
	}

	if s := strings.TrimSpace(raw.PageSize); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Query{}, Filter{}, models.NewValidationError("Page size must be an integer.")
		}
		if n <= 0 {
			return Query{}, Filter{}, models.NewValidationError("Size number must be greater than zero.")
		}
		if n > maxPageSize {
			return Query{}, Filter{}, models.NewValidationError(fmt.Sprintf("Page size must not be greater than %d", maxPageSize))
		}
		q.PageSize = n
	}

	if s := strings.TrimSpace(raw.SortBy); s != "" {
		if _, ok := sortColumns[s]; !ok {
			return Query{}, Filter{}, models.NewValidationError(fmt.Sprintf("Cannot sort by %q", s))
		}
		q.SortBy = s
	}

	switch strings.ToLower(strings.TrimSpace(raw.SortDir)) {
	case "", DefaultSortDir:
		q.Desc = true
	case "asc":
		q.Desc = false
	default:
		return Query{}, Filter{}, models.NewValidationError("Sort direction must be asc or desc")
	}

	return q, Filter{Title: strings.TrimSpace(raw.Title), Content: strings.TrimSpace(raw.Content)}, nil
}

// TotalPages is ceil(total / size).
func TotalPages(total int64, size int) int {
	if size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

// NewPage assembles the page envelope for content fetched with q.
func NewPage[T any](content []T, q Query, total int64) models.PageResponse[T] {
	if content == nil {
		content = []T{}
	}
	pages := TotalPages(total, q.PageSize)
	return models.PageResponse[T]{
		Content:       content,
		PageNo:        q.PageNo,
		PageSize:      q.PageSize,
		TotalElements: total,
		TotalPages:    pages,
		Last:          q.PageNo+1 >= pages,
	}
}

// LikePattern lowercases s, escapes LIKE metacharacters with a backslash
// and wraps it in wildcards.
func LikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}
