package merge

import (
	"sort"

	"github.com/carelink-health/platform/pkg/common/models"
	"github.com/carelink-health/platform/pkg/normalize"
	"github.com/carelink-health/platform/pkg/policy"
	"github.com/google/uuid"
)

// Merger collapses a cluster of matched source records into one canonical
// patient record with per-field provenance. Every field is recomputed from
// scratch on every call: incremental patching would drift, full recompute
// cannot.
type Merger struct {
	policy *policy.Policy
}

func NewMerger(p *policy.Policy) *Merger {
	if p == nil {
		p = policy.Default()
	}
	return &Merger{policy: p}
}

// Single-valued semantic fields resolved by origin precedence.
const (
	fieldName    = "name"
	fieldDOB     = "dob"
	fieldPhone   = "phone"
	fieldEmail   = "email"
	fieldAddress = "address"
)

// Merge produces the canonical record for a cluster. When existing is given
// its canonical_id, creation time, and version carry over; everything else is
// rebuilt from the cluster.
func (m *Merger) Merge(cluster []models.SourceRecord, existing *models.CanonicalPatientRecord) *models.CanonicalPatientRecord {
	if len(cluster) == 0 {
		return nil
	}

	ordered := make([]models.SourceRecord, len(cluster))
	copy(ordered, cluster)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].IngestedAt.Equal(ordered[j].IngestedAt) {
			return ordered[i].IngestedAt.Before(ordered[j].IngestedAt)
		}
		return ordered[i].Key() < ordered[j].Key()
	})

	out := &models.CanonicalPatientRecord{
		Identifiers: make(map[string][]string),
		Provenance:  make(map[string][]string),
	}
	if existing != nil {
		out.CanonicalID = existing.CanonicalID
		out.CreatedAt = existing.CreatedAt
		out.Version = existing.Version
	} else {
		out.CanonicalID = uuid.New().String()
	}

	members := make([]string, 0, len(ordered))
	for _, rec := range ordered {
		members = append(members, rec.Key())
	}
	sort.Strings(members)
	out.Members = members

	m.resolveField(out, ordered, fieldName, func(rec models.SourceRecord) string { return rec.FullName })
	m.resolveField(out, ordered, fieldDOB, func(rec models.SourceRecord) string { return normalize.DOB(rec.DOB) })
	m.resolveField(out, ordered, fieldPhone, m.primaryPhone)
	m.resolveField(out, ordered, fieldEmail, func(rec models.SourceRecord) string { return rec.Email })
	m.resolveField(out, ordered, fieldAddress, func(rec models.SourceRecord) string { return rec.Address })

	m.unionPhones(out, ordered)
	m.unionIdentifiers(out, ordered)
	m.unionTags(out, ordered)

	return out
}

// resolveField walks the configured precedence order and takes the first
// non-empty value, recording which record supplied it.
func (m *Merger) resolveField(out *models.CanonicalPatientRecord, ordered []models.SourceRecord, field string, value func(models.SourceRecord) string) {
	for _, origin := range m.policy.FieldPrecedence(field) {
		for _, rec := range ordered {
			if rec.Origin != origin {
				continue
			}
			v := value(rec)
			if v == "" {
				continue
			}
			switch field {
			case fieldName:
				out.FullName = v
			case fieldDOB:
				out.DOB = v
			case fieldPhone:
				out.Phone = v
			case fieldEmail:
				out.Email = v
			case fieldAddress:
				out.Address = v
			}
			out.Provenance[field] = []string{rec.Key()}
			return
		}
	}
}

func (m *Merger) primaryPhone(rec models.SourceRecord) string {
	for _, raw := range rec.Phones {
		if canonical, err := normalize.Phone(raw, m.policy.DefaultCountryCode); err == nil {
			return canonical
		}
	}
	return ""
}

// unionPhones collects every valid canonical phone beyond the primary. No
// source removes a number another source contributed.
func (m *Merger) unionPhones(out *models.CanonicalPatientRecord, ordered []models.SourceRecord) {
	seen := make(map[string]struct{})
	contributors := make(map[string]struct{})
	for _, rec := range ordered {
		for _, raw := range rec.Phones {
			canonical, err := normalize.Phone(raw, m.policy.DefaultCountryCode)
			if err != nil || canonical == out.Phone {
				continue
			}
			if _, dup := seen[canonical]; dup {
				continue
			}
			seen[canonical] = struct{}{}
			contributors[rec.Key()] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return
	}
	out.AltPhones = sortedKeys(seen)
	out.Provenance["alt_phones"] = sortedKeys(contributors)
}

func (m *Merger) unionIdentifiers(out *models.CanonicalPatientRecord, ordered []models.SourceRecord) {
	contributors := make(map[string]struct{})
	for _, rec := range ordered {
		origin := string(rec.Origin)
		out.Identifiers[origin] = append(out.Identifiers[origin], rec.OriginRecordID)
		contributors[rec.Key()] = struct{}{}
	}
	for origin := range out.Identifiers {
		sort.Strings(out.Identifiers[origin])
	}
	out.Provenance["identifiers"] = sortedKeys(contributors)
}

func (m *Merger) unionTags(out *models.CanonicalPatientRecord, ordered []models.SourceRecord) {
	seen := make(map[string]struct{})
	contributors := make(map[string]struct{})
	for _, rec := range ordered {
		for _, tag := range rec.Tags {
			seen[tag] = struct{}{}
			contributors[rec.Key()] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return
	}
	out.Tags = sortedKeys(seen)
	out.Provenance["tags"] = sortedKeys(contributors)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
