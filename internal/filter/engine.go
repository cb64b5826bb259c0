// Package filter implements the tag query and tag change engine.
//
// Both mini-languages are space-separated tokens where a leading "-" means
// exclude (queries) or remove (changes). Matching and removal compare tags
// case-insensitively; Diff compares them exactly so casing changes stay
// visible to the operator.
package filter

import (
	"slices"
	"strings"

	"tagsync/internal/model"
)

const negatePrefix = "-"

// Query is a parsed tag query.
type Query struct {
	Required []string
	Excluded []string
}

// ParseQuery splits s on single spaces and lower-cases every token.
// Tokens prefixed with "-" are excluded tags, all others are required.
// Empty tokens are ignored.
func ParseQuery(s string) Query {
	var q Query
	for _, tok := range tokens(s) {
		tok = strings.ToLower(tok)
		if tag, ok := strings.CutPrefix(tok, negatePrefix); ok {
			if tag != "" {
				q.Excluded = append(q.Excluded, tag)
			}
			continue
		}
		q.Required = append(q.Required, tok)
	}
	return q
}

// Match reports whether tags contain every required tag and none of the
// excluded ones.
func (q Query) Match(tags []string) bool {
	set := lowerSet(tags)
	for _, tag := range q.Required {
		if _, ok := set[tag]; !ok {
			return false
		}
	}
	for _, tag := range q.Excluded {
		if _, ok := set[tag]; ok {
			return false
		}
	}
	return true
}

// Filter returns the submissions matching q, keeping input order.
func Filter(subs []model.Submission, q Query) []model.Submission {
	var matched []model.Submission
	for _, sub := range subs {
		if q.Match(sub.Tags) {
			matched = append(matched, sub)
		}
	}
	return matched
}

// ApplyChange returns existing with the additions of change appended in
// order and every tag named by a removal dropped, compared
// case-insensitively over the combined list. Additions keep their case and
// are not deduplicated.
func ApplyChange(existing []string, change string) []string {
	var add []string
	remove := make(map[string]struct{})
	for _, tok := range tokens(change) {
		if tag, ok := strings.CutPrefix(tok, negatePrefix); ok {
			if tag != "" {
				remove[strings.ToLower(tag)] = struct{}{}
			}
			continue
		}
		add = append(add, tok)
	}

	combined := make([]string, 0, len(existing)+len(add))
	combined = append(combined, existing...)
	combined = append(combined, add...)

	result := make([]string, 0, len(combined))
	for _, tag := range combined {
		if _, ok := remove[strings.ToLower(tag)]; ok {
			continue
		}
		result = append(result, tag)
	}
	return result
}

// Diff returns the tags present only in newTags and only in oldTags.
// Comparison is case-sensitive, unlike Match and ApplyChange. Both results
// are sorted and deduplicated.
func Diff(oldTags, newTags []string) (added, removed []string) {
	oldSet := exactSet(oldTags)
	newSet := exactSet(newTags)
	for tag := range newSet {
		if _, ok := oldSet[tag]; !ok {
			added = append(added, tag)
		}
	}
	for tag := range oldSet {
		if _, ok := newSet[tag]; !ok {
			removed = append(removed, tag)
		}
	}
	slices.Sort(added)
	slices.Sort(removed)
	return added, removed
}

func tokens(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, " ") {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func lowerSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[strings.ToLower(tag)] = struct{}{}
	}
	return set
}

func exactSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[tag] = struct{}{}
	}
	return set
}
