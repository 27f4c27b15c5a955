package domain

// TaskPage is the pagination envelope for one page of a column's tasks.
type TaskPage struct {
	Tasks      []Task `json:"tasks"`
	Page       int    `json:"page"`
	TotalPages int    `json:"totalPages"`
	Total      int    `json:"total"`
}

// HasMore reports whether pages remain after this one.
func (p TaskPage) HasMore() bool {
	return p.Page < p.TotalPages
}
