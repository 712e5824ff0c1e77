// Package classify maps free-text image metadata to an image category.
package classify

import (
	"strings"

	"car-scraper/pkg/models"
)

// Classifier tests keyword sets in models.CategoryPriority order
type Classifier struct {
	keywords map[models.ImageCategory][]string
}

// New builds a classifier from keyword lists keyed by category name.
// Unknown category names are ignored; "360" is accepted for threesixty.
// Keywords are matched case-insensitively as substrings.
func New(keywords map[string][]string) *Classifier {
	c := &Classifier{keywords: make(map[models.ImageCategory][]string, len(keywords))}
	for name, words := range keywords {
		cat, ok := models.ParseCategory(name)
		if !ok {
			continue
		}
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				c.keywords[cat] = append(c.keywords[cat], w)
			}
		}
	}
	return c
}

// Classify returns the explicit category when it is recognized, otherwise the
// first category in priority order whose keyword occurs in title+" "+alt.
// Falls back to models.DefaultCategory.
func (c *Classifier) Classify(title, alt, explicit string) models.ImageCategory {
	if cat, ok := models.ParseCategory(explicit); ok {
		return cat
	}
	text := strings.ToLower(title + " " + alt)
	for _, cat := range models.CategoryPriority {
		for _, kw := range c.keywords[cat] {
			if strings.Contains(text, kw) {
				return cat
			}
		}
	}
	return models.DefaultCategory
}

// ClassifyCandidate is Classify applied to a candidate record
func (c *Classifier) ClassifyCandidate(cand models.CandidateImage) models.ImageCategory {
	return c.Classify(cand.Title, cand.Alt, cand.Category)
}
