package repository

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest is 1-based. Out-of-range values are clamped, never rejected.
type PageRequest struct {
	Page     int
	PageSize int
}

func (r PageRequest) normalized() PageRequest {
	if r.Page < 1 {
		r.Page = DefaultPage
	}
	switch {
	case r.PageSize < 1:
		r.PageSize = DefaultPageSize
	case r.PageSize > MaxPageSize:
		r.PageSize = MaxPageSize
	}
	return r
}

// Offset is the row offset of a normalized request.
func (r PageRequest) Offset() int {
	n := r.normalized()
	return (n.Page - 1) * n.PageSize
}

type PageResult[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPageResult[T any](req PageRequest, total int64, items []T) PageResult[T] {
	req = req.normalized()
	if items == nil {
		items = []T{}
	}
	pages := 0
	if total > 0 {
		pages = int((total + int64(req.PageSize) - 1) / int64(req.PageSize))
	}
	return PageResult[T]{
		Items:      items,
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      total,
		TotalPages: pages,
		HasNext:    req.Page < pages,
	}
}
