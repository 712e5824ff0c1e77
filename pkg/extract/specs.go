package extract

import (
	"strings"

	"car-scraper/pkg/models"
)

// Specs page keys that populate CarRecord fields
const (
	specFuelType     = "Fuel Type"
	specMileage      = "ARAI Mileage"
	specEngine       = "Engine Displacement"
	specPower        = "Max Power"
	specTransmission = "Transmission Type"
	specSafety       = "Global NCAP Safety Rating"
)

// ParseSpecSummary splits a line such as "18 kmpl | 1197 cc | 88 bhp | Manual".
// Parts are matched by unit; unmatched parts are ignored.
func ParseSpecSummary(line string) models.SpecSummary {
	var s models.SpecSummary
	for _, part := range strings.Split(line, "|") {
		part = strings.TrimSpace(part)
		lower := strings.ToLower(part)
		switch {
		case part == "":
		case strings.Contains(part, "kmpl"):
			s.Mileage = part
		case strings.Contains(part, "cc"):
			s.Engine = part
		case strings.Contains(part, "bhp"):
			s.Power = part
		case strings.Contains(lower, "manual") || strings.Contains(lower, "automatic"):
			s.Transmission = part
		}
	}
	return s
}

// ApplySpecs copies the headline specifications into rec, using N/A for missing keys
func ApplySpecs(rec *models.CarRecord, specs map[string]string) {
	get := func(key string) string {
		if v := strings.TrimSpace(specs[key]); v != "" {
			return v
		}
		return NotAvailable
	}
	rec.FuelType = get(specFuelType)
	rec.Mileage = get(specMileage)
	rec.Engine = get(specEngine)
	rec.Power = get(specPower)
	rec.Transmission = get(specTransmission)
	rec.SafetyRating = get(specSafety)
	if len(specs) > 0 {
		rec.Specs = specs
	}
}
