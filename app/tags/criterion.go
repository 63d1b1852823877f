package tags

import (
	"fmt"

	"github.com/tidwall/gjson"
)

const (
	// NoImage is the lead icon of a post no criterion matched.
	NoImage = "no image"

	// nullField marks an unconstrained field in the tag list document.
	nullField = "@null"
)

// Criterion is a named rule mapping category or author labels to a tag.
// Nil matchers never match; a criterion with both nil matches nothing.
type Criterion struct {
	Name     string
	Author   *string
	Category *string
	Icon     *string
}

// IconRef returns the criterion icon, or NoImage when it has none.
func (c Criterion) IconRef() string {
	if c.Icon == nil {
		return NoImage
	}
	return *c.Icon
}

func (c Criterion) matches(categories, authors map[string]struct{}) bool {
	if c.Category != nil {
		if _, ok := categories[*c.Category]; ok {
			return true
		}
	}
	if c.Author != nil {
		if _, ok := authors[*c.Author]; ok {
			return true
		}
	}
	return false
}

// List is a parsed tag list document.
type List struct {
	Version  string
	Criteria []Criterion
}

// ParseList decodes a tag list document:
//
//	{"updated": "...", "tags": [{"name", "id_author", "id_category", "icon_img"}]}
func ParseList(data []byte) (*List, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("tag list is not valid JSON")
	}

	root := gjson.ParseBytes(data)
	tagsField := root.Get("tags")
	if !tagsField.IsArray() {
		return nil, fmt.Errorf("tag list has no tags array")
	}

	list := &List{Version: root.Get("updated").String()}
	for i, entry := range tagsField.Array() {
		name := entry.Get("name").String()
		if name == "" {
			return nil, fmt.Errorf("tag at index %d has no name", i)
		}

		list.Criteria = append(list.Criteria, Criterion{
			Name:     name,
			Author:   optionalField(entry.Get("id_author")),
			Category: optionalField(entry.Get("id_category")),
			Icon:     optionalField(entry.Get("icon_img")),
		})
	}

	return list, nil
}

func optionalField(value gjson.Result) *string {
	if !value.Exists() || value.Type == gjson.Null {
		return nil
	}
	s := value.String()
	if s == nullField || s == "" {
		return nil
	}
	return &s
}
