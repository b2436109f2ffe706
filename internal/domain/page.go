package domain

// Default and maximum sizes for paged listings such as a trip's audit trail.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// PageParams carries page/limit values from the HTTP layer to the repo layer.
// Page is 1-indexed.
type PageParams struct {
	Page  int
	Limit int
}

// NewPageParams builds PageParams from optional query values, falling back to
// page 1 and DefaultPageLimit and capping the limit at MaxPageLimit.
func NewPageParams(page, limit *int) PageParams {
	p := PageParams{Page: 1, Limit: DefaultPageLimit}
	if page != nil && *page >= 1 {
		p.Page = *page
	}
	if limit != nil && *limit >= 1 {
		p.Limit = min(*limit, MaxPageLimit)
	}
	return p
}

// Offset returns the zero-based row offset for a SQL OFFSET clause.
func (p PageParams) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Page is one page of a listing plus the total number of matching rows.
type Page[T any] struct {
	Items []T   `json:"items"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}
