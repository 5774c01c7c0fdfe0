package model

import "time"

// CandidateType classifies what kind of recommendation a candidate is.
type CandidateType string

const (
	TypePlace    CandidateType = "place"
	TypeActivity CandidateType = "activity"
	TypeFood     CandidateType = "food"
	TypeLodging  CandidateType = "lodging"
	TypeEvent    CandidateType = "event"
)

// Confidence is the trust tier assigned to a candidate.
type Confidence string

const (
	ConfidenceConfirmed   Confidence = "confirmed"
	ConfidenceLikely      Confidence = "likely"
	ConfidenceProvisional Confidence = "provisional"
)

// ValidationStatus is the outcome of cross-source validation for a candidate.
type ValidationStatus string

const (
	ValidationVerified          ValidationStatus = "verified"
	ValidationPartiallyVerified ValidationStatus = "partially_verified"
	ValidationConflictDetected  ValidationStatus = "conflict_detected"
	ValidationUnverified        ValidationStatus = "unverified"
)

// Coordinates is a WGS84 lat/lng pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SourceRef is a citation back to the provider page or record a candidate
// was derived from.
type SourceRef struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// Validation records the result of re-verifying a candidate against an
// independent source.
type Validation struct {
	Status    ValidationStatus `json:"status"`
	Notes     string           `json:"notes,omitempty"`
	Sources   []string         `json:"sources,omitempty"`
	CheckedAt time.Time        `json:"checked_at"`
}

// Candidate is one discovered travel recommendation with score and provenance.
// IDs are unique within a stage's output after dedup; before dedup, near
// duplicates from different origins are expected and collide by similarity.
type Candidate struct {
	ID           string        `json:"candidate_id"`
	Type         CandidateType `json:"type"`
	Title        string        `json:"title"`
	Summary      string        `json:"summary,omitempty"`
	LocationText string        `json:"location_text,omitempty"`
	Coordinates  *Coordinates  `json:"coordinates,omitempty"`
	Origin       string        `json:"origin"`
	Confidence   Confidence    `json:"confidence"`
	Score        float64       `json:"score"`
	Tags         []string      `json:"tags,omitempty"`
	SourceRefs   []SourceRef   `json:"source_refs,omitempty"`
	ObservedAt   *time.Time    `json:"observed_at,omitempty"`
	Validation   *Validation   `json:"validation,omitempty"`
}

// ClusterInfo groups near-duplicate candidates: one representative plus up to
// MaxAlternates members with origins distinct from the representative and
// from each other. Excess members are only counted.
type ClusterInfo struct {
	Representative Candidate   `json:"representative"`
	Alternates     []Candidate `json:"alternates,omitempty"`
	MemberCount    int         `json:"member_count"`
}

// MaxAlternates bounds how many alternates a cluster retains.
const MaxAlternates = 3
