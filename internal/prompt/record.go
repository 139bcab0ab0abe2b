// Package prompt defines the canonical prompt record, the normalization
// from raw remote rows, and the pure in-memory query engine.
package prompt

// Variable is a `{{name}}` placeholder extracted from a prompt body.
type Variable struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	DefaultValue string `json:"default_value"`
	Required     bool   `json:"required"`
}

// Record is the canonical prompt shape every consumer surface works with.
type Record struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Description   string     `json:"description"`
	Category      string     `json:"category"`
	Alias         string     `json:"alias"`
	Tags          []string   `json:"tags"`
	Variables     []Variable `json:"variables"`
	IsPublic      bool       `json:"is_public"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     string     `json:"created_at"`
	UpdatedAt     string     `json:"updated_at"`
	UsageCount    int        `json:"usage_count"`
	FavoriteCount int        `json:"favorite_count"`
}
