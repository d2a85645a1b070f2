package core

import (
	"slices"
	"strings"
)

// Category groups preference values.
type Category string

const (
	CategoryDestinations Category = "destinations"
	CategoryBudget       Category = "budget"
	CategoryTravelStyle  Category = "travel_style"
	CategoryOther        Category = "other"
)

// Categories lists the known categories in display order.
var Categories = []Category{
	CategoryDestinations,
	CategoryBudget,
	CategoryTravelStyle,
	CategoryOther,
}

// ParseCategory maps a free-form name onto a known category. Unknown names
// fall into CategoryOther.
func ParseCategory(name string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(name))) {
	case CategoryDestinations:
		return CategoryDestinations
	case CategoryBudget:
		return CategoryBudget
	case CategoryTravelStyle:
		return CategoryTravelStyle
	default:
		return CategoryOther
	}
}

// PreferenceSet maps a category to its distinct values in insertion order.
// Values are deduplicated case-insensitively within a category.
type PreferenceSet map[Category][]string

// PreferenceDelta carries newly observed values to merge into a
// PreferenceSet. It has the same shape as the set it updates.
type PreferenceDelta = PreferenceSet

// Clone returns a deep copy.
func (p PreferenceSet) Clone() PreferenceSet {
	out := make(PreferenceSet, len(p))
	for cat, values := range p {
		if len(values) == 0 {
			continue
		}
		out[cat] = append([]string(nil), values...)
	}
	return out
}

// Empty reports whether no category holds a value.
func (p PreferenceSet) Empty() bool {
	for _, values := range p {
		if len(values) > 0 {
			return false
		}
	}
	return true
}

// Len returns the total number of values across categories.
func (p PreferenceSet) Len() int {
	n := 0
	for _, values := range p {
		n += len(values)
	}
	return n
}

// CategoryCount returns the number of categories holding at least one value.
func (p PreferenceSet) CategoryCount() int {
	n := 0
	for _, values := range p {
		if len(values) > 0 {
			n++
		}
	}
	return n
}

// Add appends value to cat unless an equal value (ignoring case) is already
// present. It reports whether the set changed.
func (p PreferenceSet) Add(cat Category, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	for _, existing := range p[cat] {
		if strings.EqualFold(existing, value) {
			return false
		}
	}
	p[cat] = append(p[cat], value)
	return true
}

// Merge unions delta into p and reports whether anything was added.
func (p PreferenceSet) Merge(delta PreferenceDelta) bool {
	changed := false
	for _, cat := range delta.OrderedCategories() {
		for _, v := range delta[cat] {
			if p.Add(cat, v) {
				changed = true
			}
		}
	}
	return changed
}

// Limit returns a copy keeping at most n values per category (the earliest).
func (p PreferenceSet) Limit(n int) PreferenceSet {
	out := p.Clone()
	if n < 0 {
		return out
	}
	for cat, values := range out {
		if len(values) > n {
			out[cat] = values[:n]
		}
	}
	return out
}

// OrderedCategories returns the categories present in p, known categories
// first in display order, then any others sorted by name.
func (p PreferenceSet) OrderedCategories() []Category {
	var out []Category
	seen := make(map[Category]bool, len(p))
	for _, cat := range Categories {
		if len(p[cat]) > 0 {
			out = append(out, cat)
			seen[cat] = true
		}
	}
	var rest []Category
	for cat, values := range p {
		if !seen[cat] && len(values) > 0 {
			rest = append(rest, cat)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

// Size is the serialized character cost of the set: category names plus
// values.
func (p PreferenceSet) Size() int {
	n := 0
	for cat, values := range p {
		if len(values) == 0 {
			continue
		}
		n += len(cat)
		for _, v := range values {
			n += len(v)
		}
	}
	return n
}
