package prompt

import (
	"sort"
	"strings"
	"time"
)

// Filter selects records; all set predicates must hold (AND).
type Filter struct {
	// Keyword matches as a case-insensitive substring of title, content,
	// description, or any tag.
	Keyword   string   `json:"keyword,omitempty"`
	Category  string   `json:"category,omitempty"`
	Tags      []string `json:"tags,omitempty"` // intersection: at least one must be present
	IsPublic  *bool    `json:"is_public,omitempty"`
	CreatedBy string   `json:"created_by,omitempty"`
}

// Pagination describes one page of a result set.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Match reports whether r passes every set predicate.
func (f Filter) Match(r Record) bool {
	if f.Keyword != "" && !matchKeyword(r, f.Keyword) {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if len(f.Tags) > 0 && !intersects(r.Tags, f.Tags) {
		return false
	}
	if f.IsPublic != nil && r.IsPublic != *f.IsPublic {
		return false
	}
	if f.CreatedBy != "" && r.CreatedBy != f.CreatedBy {
		return false
	}
	return true
}

func matchKeyword(r Record, keyword string) bool {
	kw := strings.ToLower(keyword)
	for _, s := range []string{r.Title, r.Content, r.Description} {
		if strings.Contains(strings.ToLower(s), kw) {
			return true
		}
	}
	for _, tag := range r.Tags {
		if strings.Contains(strings.ToLower(tag), kw) {
			return true
		}
	}
	return false
}

func intersects(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// Apply filters then sorts a record set, returning a new slice. Input
// order breaks ties (stable sort).
func Apply(records []Record, f Filter, sortBy, sortOrder string) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	SortRecords(out, sortBy, sortOrder)
	return out
}

// SortRecords sorts in place with a type-aware comparison: date fields as
// instants, counter fields as numbers, everything else as case-insensitive
// text. An empty sortBy leaves input order untouched.
func SortRecords(records []Record, by, order string) {
	if by == "" {
		return
	}
	desc := strings.EqualFold(order, "desc")

	sort.SliceStable(records, func(i, j int) bool {
		c := compareBy(records[i], records[j], by)
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compareBy(a, b Record, by string) int {
	switch by {
	case "created_at", "updated_at":
		ta, tb := instant(fieldText(a, by)), instant(fieldText(b, by))
		switch {
		case ta < tb:
			return -1
		case ta > tb:
			return 1
		}
		return 0
	case "usage_count", "favorite_count":
		var na, nb int
		if by == "usage_count" {
			na, nb = a.UsageCount, b.UsageCount
		} else {
			na, nb = a.FavoriteCount, b.FavoriteCount
		}
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	default:
		return strings.Compare(
			strings.ToLower(fieldText(a, by)),
			strings.ToLower(fieldText(b, by)),
		)
	}
}

func fieldText(r Record, name string) string {
	switch name {
	case "title":
		return r.Title
	case "content":
		return r.Content
	case "description":
		return r.Description
	case "category":
		return r.Category
	case "alias":
		return r.Alias
	case "created_by":
		return r.CreatedBy
	case "created_at":
		return r.CreatedAt
	case "updated_at":
		return r.UpdatedAt
	default:
		return r.Title
	}
}

func instant(s string) int64 {
	if s == "" {
		return 0
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli()
	}
	return 0
}

// Paginate slices records into one page. When all is set, the whole set is
// returned as a single page.
func Paginate(records []Record, page, pageSize int, all bool) ([]Record, Pagination) {
	total := len(records)
	if all {
		return records, Pagination{Page: 1, PageSize: total, Total: total, TotalPages: 1}
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * pageSize
	if start >= total {
		return []Record{}, Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages}
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return records[start:end], Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages}
}
