package models

import (
	"time"
)

// Origin identifies one of the independent external systems contributing
// patient rows.
type Origin string

const (
	OriginRoster     Origin = "roster"
	OriginEnrollment Origin = "enrollment"
	OriginDirectory  Origin = "directory"
)

func (o Origin) Valid() bool {
	switch o {
	case OriginRoster, OriginEnrollment, OriginDirectory:
		return true
	}
	return false
}

// SourceRecord is one row as seen from one origin, already mapped into the
// common shape by that origin's adapter. Immutable once created; re-ingest of
// the same row produces a new generation.
type SourceRecord struct {
	ID             string                 `json:"id"`
	Origin         Origin                 `json:"origin"`
	OriginRecordID string                 `json:"origin_record_id"`
	Generation     int                    `json:"generation"`
	FullName       string                 `json:"full_name"`
	Phones         []string               `json:"phones,omitempty"`
	Email          string                 `json:"email,omitempty"`
	DOB            string                 `json:"dob,omitempty"`
	Address        string                 `json:"address,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
	Attributes     map[string]interface{} `json:"attributes,omitempty"`
	IngestedAt     time.Time              `json:"ingested_at"`
	Retracted      bool                   `json:"retracted,omitempty"`
}

// Key uniquely identifies the row across origins.
func (r SourceRecord) Key() string {
	return string(r.Origin) + ":" + r.OriginRecordID
}

// PairKey builds the order-independent identity of a record pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// MatchCandidate links two source records that plausibly describe the same
// person. Produced fresh on every pipeline run, never mutated.
type MatchCandidate struct {
	RecordA string  `json:"record_a"`
	RecordB string  `json:"record_b"`
	Tier    int     `json:"tier"`
	Score   float64 `json:"score"`
}

func (c MatchCandidate) PairKey() string {
	return PairKey(c.RecordA, c.RecordB)
}

type DecisionState string

const (
	DecisionAutoAccepted  DecisionState = "auto_accepted"
	DecisionPendingReview DecisionState = "pending_review"
	DecisionRejectedAuto  DecisionState = "rejected_auto"
	DecisionConfirmed     DecisionState = "confirmed_by_reviewer"
	DecisionDeclined      DecisionState = "declined_by_reviewer"
)

// Terminal reports whether the state can never transition again.
// pending_review is the only non-terminal state.
func (s DecisionState) Terminal() bool {
	return s != DecisionPendingReview
}

// Accepted reports whether the decision merges its pair.
func (s DecisionState) Accepted() bool {
	return s == DecisionAutoAccepted || s == DecisionConfirmed
}

// MatchDecision is the resolved outcome for one candidate pair.
type MatchDecision struct {
	ID         string        `json:"id"`
	PairKey    string        `json:"pair_key"`
	RecordA    string        `json:"record_a"`
	RecordB    string        `json:"record_b"`
	Tier       int           `json:"tier"`
	Score      float64       `json:"score"`
	State      DecisionState `json:"state"`
	CreatedAt  time.Time     `json:"created_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy string        `json:"resolved_by,omitempty"`
}

// CanonicalPatientRecord is the merged entity for one real-world person.
// Provenance maps every populated field to the origin_record_ids that supplied
// its current value(s).
type CanonicalPatientRecord struct {
	CanonicalID string              `json:"canonical_id"`
	FullName    string              `json:"full_name"`
	DOB         string              `json:"dob,omitempty"`
	Phone       string              `json:"phone,omitempty"`
	Email       string              `json:"email,omitempty"`
	Address     string              `json:"address,omitempty"`
	AltPhones   []string            `json:"alt_phones,omitempty"`
	Identifiers map[string][]string `json:"identifiers"`
	Tags        []string            `json:"tags,omitempty"`
	Provenance  map[string][]string `json:"provenance"`
	Members     []string            `json:"members"`
	Version     int                 `json:"version"`
	Incomplete  bool                `json:"incomplete,omitempty"`
	Inactive    bool                `json:"inactive,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// SameContent compares the merge-derived content of two canonical records,
// ignoring versioning and timestamps. Used to keep re-runs from bumping
// versions when nothing changed.
func (c *CanonicalPatientRecord) SameContent(other *CanonicalPatientRecord) bool {
	if other == nil {
		return false
	}
	if c.FullName != other.FullName || c.DOB != other.DOB || c.Phone != other.Phone ||
		c.Email != other.Email || c.Address != other.Address {
		return false
	}
	if !equalSlices(c.AltPhones, other.AltPhones) || !equalSlices(c.Tags, other.Tags) ||
		!equalSlices(c.Members, other.Members) {
		return false
	}
	return equalSliceMaps(c.Identifiers, other.Identifiers) &&
		equalSliceMaps(c.Provenance, other.Provenance)
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalSliceMaps(a, b map[string][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if !equalSlices(v, b[k]) {
			return false
		}
	}
	return true
}

// ValidatedRecord is a canonical record that passed (or failed) the target
// schema check and carries its versioning stamps. This is the sole shape
// handed to external consumers.
type ValidatedRecord struct {
	CanonicalPatientRecord
	ValidatedAt time.Time `json:"validated_at"`
}

// Event is the envelope published on the bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // source-record, canonical-updated, review-pending
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// RunSummary is the per-run report persisted and cached for operators.
type RunSummary struct {
	RunID             string            `json:"run_id"`
	StartedAt         time.Time         `json:"started_at"`
	CompletedAt       time.Time         `json:"completed_at"`
	PoolSize          int               `json:"pool_size"`
	Candidates        int               `json:"candidates"`
	AutoAccepted      int               `json:"auto_accepted"`
	PendingReview     int               `json:"pending_review"`
	RejectedAuto      int               `json:"rejected_auto"`
	Clusters          int               `json:"clusters"`
	NewCanonicals     int               `json:"new_canonicals"`
	UpdatedCanonicals int               `json:"updated_canonicals"`
	IncompleteRecords int               `json:"incomplete_records"`
	OriginErrors      map[string]string `json:"origin_errors,omitempty"`
}

// Intake API shapes.
type RawRowsRequest struct {
	Rows []map[string]interface{} `json:"rows"`
}

type RowError struct {
	Index  int    `json:"index"`
	RowID  string `json:"row_id,omitempty"`
	Reason string `json:"reason"`
}

type RawRowsResponse struct {
	Origin   Origin     `json:"origin"`
	Accepted int        `json:"accepted"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors,omitempty"`
}

// Review API shapes.
type ResolveReviewRequest struct {
	Outcome    string `json:"outcome"` // confirmed | declined
	ResolvedBy string `json:"resolved_by,omitempty"`
}
