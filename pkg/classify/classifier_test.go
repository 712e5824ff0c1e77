package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"car-scraper/pkg/config"
	"car-scraper/pkg/models"
)

func newDefault() *Classifier {
	return New(config.DefaultCategoryKeywords())
}

func TestClassify_KeywordMatches(t *testing.T) {
	c := newDefault()
	tests := []struct {
		title, alt string
		want       models.ImageCategory
	}{
		{"Front Left Side", "", models.CategoryExterior},
		{"", "Nexon Headlight", models.CategoryExterior},
		{"Dashboard", "", models.CategoryInterior},
		{"Steering Wheel", "", models.CategoryExterior}, // "wheel" is an exterior keyword and exterior is tested first
		{"Boot Space", "", models.CategoryInterior},
		{"Color - Pristine White", "", models.CategoryColors},
		{"Nexon Colour", "", models.CategoryColors},
		{"360 View", "", models.CategoryThreeSixty},
		{"Variant XZ Plus", "", models.CategoryVariants},
		{"Nexon", "Tata Nexon image", models.CategoryExterior}, // default
		{"", "", models.CategoryExterior},
	}
	for _, tt := range tests {
		t.Run(tt.title+"|"+tt.alt, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.title, tt.alt, ""))
		})
	}
}

func TestClassify_PriorityIsFixed(t *testing.T) {
	// Input carrying keywords from two categories resolves to the earlier one,
	// regardless of map iteration order
	for i := 0; i < 50; i++ {
		c := newDefault()
		assert.Equal(t, models.CategoryInterior, c.Classify("Dashboard colour trim", "", ""))
		assert.Equal(t, models.CategoryInterior, c.Classify("colour", "dashboard", ""))
		assert.Equal(t, models.CategoryColors, c.Classify("360 colour spin", "", ""))
		assert.Equal(t, models.CategoryExterior, c.Classify("rear seat", "", ""))
	}
}

func TestClassify_ExplicitWins(t *testing.T) {
	c := newDefault()
	assert.Equal(t, models.CategoryColors, c.Classify("Front View", "", "colors"))
	assert.Equal(t, models.CategoryThreeSixty, c.Classify("Dashboard", "", "360"))
	assert.Equal(t, models.CategoryVariants, c.Classify("", "", " Variants "))
}

func TestClassify_UnrecognizedExplicitFallsThrough(t *testing.T) {
	c := newDefault()
	assert.Equal(t, models.CategoryInterior, c.Classify("Dashboard", "", "gallery"))
	assert.Equal(t, models.CategoryExterior, c.Classify("Nexon", "", "unknown"))
}

func TestClassify_CustomKeywords(t *testing.T) {
	c := New(map[string][]string{
		"interior": {" Cabin "},
		"360":      {"spin"},
		"bogus":    {"front"},
	})
	assert.Equal(t, models.CategoryInterior, c.Classify("CABIN view", "", ""))
	assert.Equal(t, models.CategoryThreeSixty, c.Classify("Spin around", "", ""))
	// "front" only belongs to an ignored category
	assert.Equal(t, models.CategoryExterior, c.Classify("front", "", ""))
}

func TestClassifyCandidate(t *testing.T) {
	c := newDefault()
	cand := models.CandidateImage{URL: "x", Title: "Color - Red", Alt: "Red", Category: "colors"}
	assert.Equal(t, models.CategoryColors, c.ClassifyCandidate(cand))
}
