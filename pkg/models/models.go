package models

import "time"

// CandidateImage is an unvalidated image reference produced by the extraction layer
type CandidateImage struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Alt      string `json:"alt,omitempty"`
	Category string `json:"category,omitempty"` // Explicit tag; wins over keyword inference when recognized
}

// NormalizedURL is an absolute https image URL with no query except the resize directive
type NormalizedURL string

// ContentDigest is the hex SHA-256 of downloaded image bytes
type ContentDigest string

// AcquiredImage is the immutable record of an accepted, written image
type AcquiredImage struct {
	Category  ImageCategory `json:"category"`
	FilePath  string        `json:"file_path"`
	Digest    ContentDigest `json:"digest"`
	SourceURL NormalizedURL `json:"source_url"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
}

// LedgerEntry stores one committed acquisition in the persistent ledger
type LedgerEntry struct {
	URL        NormalizedURL `json:"url"`
	Digest     ContentDigest `json:"digest"`
	Path       string        `json:"path"`
	Category   ImageCategory `json:"category"`
	Brand      string        `json:"brand,omitempty"`
	Model      string        `json:"model,omitempty"`
	PHash      uint64        `json:"phash,omitempty"` // Difference hash; 0 when perceptual dedup is off
	AcquiredAt time.Time     `json:"acquired_at"`
}

// ModelListing is one model link found on a brand listing page
type ModelListing struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Price string `json:"price,omitempty"`
}

// Variant is one trim/variant row on a model page
type Variant struct {
	Name           string       `json:"name"`
	URL            string       `json:"url,omitempty"`
	Tags           []string     `json:"tags,omitempty"`
	Specifications string       `json:"specifications,omitempty"` // Raw "18 kmpl | 1197 cc | ..." line
	Summary        *SpecSummary `json:"summary,omitempty"`
	Price          string       `json:"price,omitempty"`
}

// SpecSummary is the structured form of a pipe-separated spec line
type SpecSummary struct {
	Mileage      string `json:"mileage,omitempty"`
	Engine       string `json:"engine,omitempty"`
	Power        string `json:"power,omitempty"`
	Transmission string `json:"transmission,omitempty"`
}

// CarRecord is one line of cars.jsonl
type CarRecord struct {
	Brand          string                `json:"brand"`
	Model          string                `json:"model"`
	URL            string                `json:"url"`
	Price          string                `json:"price"`
	PriceRange     string                `json:"price_range,omitempty"`
	FuelType       string                `json:"fuel_type"`
	Mileage        string                `json:"mileage"`
	Engine         string                `json:"engine"`
	Power          string                `json:"power"`
	Transmission   string                `json:"transmission"`
	SafetyRating   string                `json:"safety_rating"`
	Specs          map[string]string     `json:"specs,omitempty"`
	Variants       []Variant             `json:"variants,omitempty"`
	ImageCounts    map[ImageCategory]int `json:"image_counts"`
	TotalImages    int                   `json:"total_images"`
	ErrorType      string                `json:"error_type,omitempty"` // Set when the model batch aborted
	ProcessedAt    time.Time             `json:"processed_at"`
	ImageDirectory string                `json:"image_directory"`
}

// CategoryStats summarises one category across the run
type CategoryStats struct {
	Total       int     `yaml:"total"`
	MeanPerCar  float64 `yaml:"mean_per_car"`
	ModelsWith  int     `yaml:"models_with_images"`
	MaxPerModel int     `yaml:"max_per_model"`
}

// RunMetadata is written to run_metadata.yaml at the end of a run
type RunMetadata struct {
	RunID         string                          `yaml:"run_id"`
	StartTime     time.Time                       `yaml:"start_time"`
	EndTime       time.Time                       `yaml:"end_time"`
	LedgerMode    string                          `yaml:"ledger_mode"`
	Brands        []string                        `yaml:"brands"`
	TotalModels   int                             `yaml:"total_models"`
	FailedModels  int                             `yaml:"failed_models"`
	TotalImages   int                             `yaml:"total_images"`
	TotalRejected int                             `yaml:"total_rejected"`
	Categories    map[ImageCategory]CategoryStats `yaml:"categories"`
	Rejections    map[Outcome]int                 `yaml:"rejections,omitempty"`
	ErrorsByType  map[string]int                  `yaml:"errors_by_type,omitempty"`
	OutputDir     string                          `yaml:"output_dir"`
	LedgerSeeded  int                             `yaml:"ledger_seeded"`
}
