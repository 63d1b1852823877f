package tags

// Classification is the tag set and lead icon assigned to one post.
type Classification struct {
	Tags     []string
	LeadIcon string
}

// Classify evaluates the criteria in order against a post's raw labels.
// Every matching criterion contributes its name; the first match alone
// decides the lead icon.
func Classify(categories, authors []string, criteria []Criterion) Classification {
	result := Classification{
		Tags:     []string{},
		LeadIcon: NoImage,
	}

	categorySet := toSet(categories)
	authorSet := toSet(authors)

	matched := false
	for _, criterion := range criteria {
		if !criterion.matches(categorySet, authorSet) {
			continue
		}

		result.Tags = append(result.Tags, criterion.Name)
		if !matched {
			result.LeadIcon = criterion.IconRef()
			matched = true
		}
	}

	return result
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
