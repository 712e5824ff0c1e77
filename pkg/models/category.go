package models

import "strings"

// ImageCategory is the semantic bucket an acquired image is filed under.
// Its string value is also the directory name under <brand>/<model>/.
type ImageCategory string

const (
	CategoryUnset      ImageCategory = ""
	CategoryExterior   ImageCategory = "exterior"
	CategoryInterior   ImageCategory = "interior"
	CategoryColors     ImageCategory = "colors"
	CategoryThreeSixty ImageCategory = "threesixty"
	CategoryVariants   ImageCategory = "variants"
)

// CategoryPriority is the fixed order in which keyword sets are tested.
var CategoryPriority = []ImageCategory{
	CategoryExterior,
	CategoryInterior,
	CategoryColors,
	CategoryThreeSixty,
	CategoryVariants,
}

// DefaultCategory is returned when nothing matches.
const DefaultCategory = CategoryExterior

// String implements fmt.Stringer for logging
func (c ImageCategory) String() string {
	if c == "" {
		return "unset"
	}
	return string(c)
}

// IsValid returns true if c is one of the five known categories
func (c ImageCategory) IsValid() bool {
	switch c {
	case CategoryExterior, CategoryInterior, CategoryColors, CategoryThreeSixty, CategoryVariants:
		return true
	}
	return false
}

// ParseCategory maps a loosely written tag to a category.
// "360" is accepted as an alias for threesixty.
func ParseCategory(s string) (ImageCategory, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "360" {
		return CategoryThreeSixty, true
	}
	c := ImageCategory(s)
	return c, c.IsValid()
}
