package merge

import (
	"testing"
	"time"

	"github.com/carelink-health/platform/pkg/common/models"
	"github.com/carelink-health/platform/pkg/policy"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func cluster() []models.SourceRecord {
	return []models.SourceRecord{
		{
			Origin:         models.OriginRoster,
			OriginRecordID: "R1",
			FullName:       "Robert Green",
			Phones:         []string{"205-555-0100"},
			DOB:            "1955-03-02",
			Address:        "14 Oak St, Birmingham AL",
			Tags:           []string{"wellness"},
			IngestedAt:     t0,
		},
		{
			Origin:         models.OriginDirectory,
			OriginRecordID: "D1",
			FullName:       "Bob Green",
			Phones:         []string{"+12055550100", "205-555-0188"},
			Email:          "bob@example.com",
			IngestedAt:     t0.Add(time.Hour),
		},
		{
			Origin:         models.OriginEnrollment,
			OriginRecordID: "E1",
			FullName:       "Robert Green",
			Tags:           []string{"chronic-care"},
			IngestedAt:     t0.Add(2 * time.Hour),
		},
	}
}

func TestMergePrecedenceAndProvenance(t *testing.T) {
	m := NewMerger(policy.Default())
	got := m.Merge(cluster(), nil)

	// Directory outranks roster for phone under the default policy.
	if got.Phone != "+12055550100" {
		t.Fatalf("phone = %q", got.Phone)
	}
	if prov := got.Provenance["phone"]; len(prov) != 1 || prov[0] != "directory:D1" {
		t.Fatalf("phone provenance = %v", prov)
	}

	// Roster outranks directory for name.
	if got.FullName != "Robert Green" {
		t.Fatalf("name = %q", got.FullName)
	}
	if prov := got.Provenance["name"]; len(prov) != 1 || prov[0] != "roster:R1" {
		t.Fatalf("name provenance = %v", prov)
	}

	if got.DOB != "1955-03-02" || got.Email != "bob@example.com" {
		t.Fatalf("dob=%q email=%q", got.DOB, got.Email)
	}
}

func TestMergeUnionsMultiValuedFields(t *testing.T) {
	got := NewMerger(policy.Default()).Merge(cluster(), nil)

	if len(got.AltPhones) != 1 || got.AltPhones[0] != "+12055550188" {
		t.Fatalf("alt phones = %v", got.AltPhones)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "chronic-care" || got.Tags[1] != "wellness" {
		t.Fatalf("tags = %v", got.Tags)
	}
	if ids := got.Identifiers["roster"]; len(ids) != 1 || ids[0] != "R1" {
		t.Fatalf("roster identifiers = %v", got.Identifiers)
	}
	if len(got.Identifiers) != 3 {
		t.Fatalf("identifiers = %v", got.Identifiers)
	}
	if len(got.Members) != 3 {
		t.Fatalf("members = %v", got.Members)
	}
}

func TestMergeKeepsCanonicalID(t *testing.T) {
	m := NewMerger(policy.Default())
	first := m.Merge(cluster(), nil)
	if first.CanonicalID == "" {
		t.Fatal("no canonical id assigned")
	}

	second := m.Merge(cluster(), first)
	if second.CanonicalID != first.CanonicalID {
		t.Fatalf("canonical id changed: %s -> %s", first.CanonicalID, second.CanonicalID)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	m := NewMerger(policy.Default())
	first := m.Merge(cluster(), nil)
	second := m.Merge(cluster(), first)

	if !second.SameContent(first) {
		t.Fatalf("re-merge changed content:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestMergeNoSilentOverwrite(t *testing.T) {
	m := NewMerger(policy.Default())
	base := cluster()[:1] // roster only
	first := m.Merge(base, nil)

	if first.Phone != "+12055550100" || first.Provenance["phone"][0] != "roster:R1" {
		t.Fatalf("baseline wrong: %+v", first)
	}

	// A directory record with a different live number arrives: the value and
	// its provenance must move together.
	grown := append(base, models.SourceRecord{
		Origin:         models.OriginDirectory,
		OriginRecordID: "D9",
		FullName:       "Bob Green",
		Phones:         []string{"205-555-0999"},
		IngestedAt:     t0.Add(time.Hour),
	})
	second := m.Merge(grown, first)

	if second.Phone != "+12055550999" {
		t.Fatalf("phone = %q", second.Phone)
	}
	if prov := second.Provenance["phone"]; len(prov) != 1 || prov[0] != "directory:D9" {
		t.Fatalf("provenance did not follow the value: %v", prov)
	}
	// The displaced roster number is retained, not removed.
	if len(second.AltPhones) != 1 || second.AltPhones[0] != "+12055550100" {
		t.Fatalf("alt phones = %v", second.AltPhones)
	}
}

func TestMergeRespectsConfiguredPrecedence(t *testing.T) {
	p := policy.Default()
	p.Precedence["phone"] = []models.Origin{models.OriginRoster, models.OriginDirectory, models.OriginEnrollment}

	got := NewMerger(p).Merge(cluster(), nil)
	if prov := got.Provenance["phone"]; len(prov) != 1 || prov[0] != "roster:R1" {
		t.Fatalf("configured precedence ignored: %v", prov)
	}
}

func TestMergeEmptyCluster(t *testing.T) {
	if got := NewMerger(nil).Merge(nil, nil); got != nil {
		t.Fatalf("expected nil for empty cluster, got %+v", got)
	}
}
