package prompt

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ostanin/pdeck/internal/bitable"
)

// fieldNames maps each canonical column to the names it may carry in the
// remote table, localized names first. The first present field wins.
var fieldNames = map[string][]string{
	"title":          {"标题", "Title", "title"},
	"content":        {"内容", "提示词", "Content", "content", "prompt"},
	"description":    {"描述", "Description", "description"},
	"category":       {"分类", "Category", "category"},
	"alias":          {"别名", "Alias", "alias"},
	"tags":           {"标签", "Tags", "tags"},
	"is_public":      {"是否公开", "Public", "is_public"},
	"created_by":     {"创建人", "Creator", "created_by"},
	"created_at":     {"创建时间", "created_at"},
	"updated_at":     {"更新时间", "updated_at"},
	"usage_count":    {"使用次数", "usage_count"},
	"favorite_count": {"收藏次数", "favorite_count"},
}

// varPattern matches {{identifier}} placeholders; an identifier is any
// non-} run.
var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Normalize maps one raw remote row onto the canonical Record. It returns
// nil when the row has no usable content (a prompt with no body is not a
// valid record). now supplies timestamp defaults for rows missing them.
func Normalize(raw bitable.Record, now time.Time) *Record {
	content := strings.TrimSpace(textValue(resolve(raw.Fields, "content")))
	if content == "" {
		return nil
	}

	nowStr := now.UTC().Format(time.RFC3339)
	createdAt := timeValue(resolve(raw.Fields, "created_at"))
	if createdAt == "" {
		createdAt = nowStr
	}
	updatedAt := timeValue(resolve(raw.Fields, "updated_at"))
	if updatedAt == "" {
		updatedAt = nowStr
	}

	return &Record{
		ID:            raw.RecordID,
		Title:         strings.TrimSpace(textValue(resolve(raw.Fields, "title"))),
		Content:       content,
		Description:   strings.TrimSpace(textValue(resolve(raw.Fields, "description"))),
		Category:      strings.TrimSpace(textValue(resolve(raw.Fields, "category"))),
		Alias:         strings.TrimSpace(textValue(resolve(raw.Fields, "alias"))),
		Tags:          tagsValue(resolve(raw.Fields, "tags")),
		Variables:     ExtractVariables(content),
		IsPublic:      boolValue(resolve(raw.Fields, "is_public")),
		CreatedBy:     strings.TrimSpace(textValue(resolve(raw.Fields, "created_by"))),
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
		UsageCount:    intValue(resolve(raw.Fields, "usage_count")),
		FavoriteCount: intValue(resolve(raw.Fields, "favorite_count")),
	}
}

// NormalizeAll normalizes a batch, dropping rows Normalize rejects.
func NormalizeAll(raws []bitable.Record, now time.Time) []Record {
	records := make([]Record, 0, len(raws))
	for _, raw := range raws {
		if r := Normalize(raw, now); r != nil {
			records = append(records, *r)
		}
	}
	return records
}

// ExtractVariables scans content for {{name}} placeholders. The first
// occurrence of each distinct trimmed name wins, order preserved.
func ExtractVariables(content string) []Variable {
	var (
		vars []Variable
		seen = map[string]bool{}
	)
	for _, m := range varPattern.FindAllStringSubmatch(content, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		vars = append(vars, Variable{Name: name, Required: true})
	}
	return vars
}

// BuildFields converts a canonical record into the remote fields map for
// the create endpoint, using the primary localized column names. Zero
// values are omitted so the remote applies its own defaults.
func BuildFields(r Record) map[string]any {
	fields := map[string]any{
		"标题": r.Title,
		"内容": r.Content,
	}
	if r.Description != "" {
		fields["描述"] = r.Description
	}
	if r.Category != "" {
		fields["分类"] = r.Category
	}
	if r.Alias != "" {
		fields["别名"] = r.Alias
	}
	if len(r.Tags) > 0 {
		fields["标签"] = r.Tags
	}
	if r.IsPublic {
		fields["是否公开"] = true
	}
	return fields
}

// resolve returns the first value present under any of the canonical
// field's known remote names.
func resolve(fields map[string]any, canonical string) any {
	for _, name := range fieldNames[canonical] {
		if v, ok := fields[name]; ok && v != nil {
			return v
		}
	}
	return nil
}

// textValue flattens the remote's heterogeneous text shapes into a plain
// string: bare strings, rich-text segment arrays, person/select objects,
// numbers and booleans.
func textValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		if s, ok := t["text"].(string); ok {
			return s
		}
		if s, ok := t["name"].(string); ok {
			return s
		}
		return ""
	case []any:
		var b strings.Builder
		for _, e := range t {
			b.WriteString(textValue(e))
		}
		return b.String()
	default:
		return ""
	}
}

// tagsValue accepts a tag array or a single comma-separated string and
// yields trimmed, non-empty tags in source order. Duplicates are kept.
func tagsValue(v any) []string {
	var parts []string
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		for _, e := range t {
			parts = append(parts, textValue(e))
		}
	case []string:
		parts = t
	case string:
		parts = strings.FieldsFunc(t, func(r rune) bool { return r == ',' || r == '，' })
	default:
		parts = []string{textValue(v)}
	}

	var tags []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// intValue coerces counters; non-numeric or negative source values clamp
// to 0.
func intValue(v any) int {
	var n int
	switch t := v.(type) {
	case float64:
		n = int(t)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			n = int(f)
		}
	}
	if n < 0 {
		return 0
	}
	return n
}

func boolValue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.TrimSpace(t)
		return strings.EqualFold(s, "true") || s == "是"
	default:
		return false
	}
}

// timeValue renders remote timestamp shapes (epoch milliseconds or a
// preformatted string) as RFC 3339; empty means absent.
func timeValue(v any) string {
	switch t := v.(type) {
	case float64:
		if t <= 0 {
			return ""
		}
		return time.UnixMilli(int64(t)).UTC().Format(time.RFC3339)
	case string:
		return strings.TrimSpace(t)
	default:
		return ""
	}
}
