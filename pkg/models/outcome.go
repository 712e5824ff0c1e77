package models

// Outcome is the result of acquiring one candidate image
type Outcome string

const (
	OutcomeUnset               Outcome = ""
	OutcomeAccepted            Outcome = "accepted"
	OutcomeInvalidURL          Outcome = "invalid_url"
	OutcomeDuplicateURL        Outcome = "duplicate_url"
	OutcomeDuplicateDigest     Outcome = "duplicate_digest"
	OutcomeDuplicatePerceptual Outcome = "duplicate_perceptual"
	OutcomeDuplicatePath       Outcome = "duplicate_path"
	OutcomeFetchFailed         Outcome = "fetch_failed"
	OutcomeQualityRejected     Outcome = "quality_rejected"
	OutcomeFilesystemError     Outcome = "filesystem_error"
)

// String implements fmt.Stringer for logging
func (o Outcome) String() string {
	if o == "" {
		return "unset"
	}
	return string(o)
}

// IsValid returns true if o is a known outcome
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeAccepted, OutcomeInvalidURL, OutcomeDuplicateURL, OutcomeDuplicateDigest,
		OutcomeDuplicatePerceptual, OutcomeDuplicatePath, OutcomeFetchFailed,
		OutcomeQualityRejected, OutcomeFilesystemError:
		return true
	}
	return false
}

// IsDuplicate reports whether o is one of the ledger duplicate signals
func (o Outcome) IsDuplicate() bool {
	switch o {
	case OutcomeDuplicateURL, OutcomeDuplicateDigest, OutcomeDuplicatePerceptual, OutcomeDuplicatePath:
		return true
	}
	return false
}
