package tags

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

const (
	// OfficialTag always ranks first.
	OfficialTag = "Official"

	// bulletinTag is a criterion used for classification only; it is never
	// offered as a selectable tag.
	bulletinTag = "Student Bulletin"
)

var folder = cases.Fold()

// CompareTagNames orders tag names case-insensitively with OfficialTag first.
func CompareTagNames(a, b string) int {
	aOfficial := a == OfficialTag
	bOfficial := b == OfficialTag
	switch {
	case aOfficial && bOfficial:
		return 0
	case aOfficial:
		return -1
	case bOfficial:
		return 1
	}
	return strings.Compare(folder.String(a), folder.String(b))
}

// SortTagNames sorts names in place with CompareTagNames.
func SortTagNames(names []string) {
	slices.SortStableFunc(names, CompareTagNames)
}

// KnownTagNames returns the distinct selectable tag names, ranked.
func KnownTagNames(criteria []Criterion) []string {
	seen := make(map[string]struct{}, len(criteria))
	names := make([]string, 0, len(criteria))
	for _, c := range criteria {
		if c.Name == bulletinTag {
			continue
		}
		if _, ok := seen[c.Name]; ok {
			continue
		}
		seen[c.Name] = struct{}{}
		names = append(names, c.Name)
	}
	SortTagNames(names)
	return names
}

// SubscribedTagNames keeps the selected names that are still known, ranked.
func SubscribedTagNames(criteria []Criterion, selected []string) []string {
	known := toSet(KnownTagNames(criteria))

	subscribed := make([]string, 0, len(selected))
	seen := make(map[string]struct{}, len(selected))
	for _, name := range selected {
		if _, ok := known[name]; !ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		subscribed = append(subscribed, name)
	}
	SortTagNames(subscribed)
	return subscribed
}
