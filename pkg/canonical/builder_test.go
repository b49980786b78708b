package canonical

import (
	"testing"
	"time"

	"github.com/carelink-health/platform/pkg/common/models"
)

func testBuilder(at time.Time) *Builder {
	return &Builder{now: func() time.Time { return at }}
}

func complete() *models.CanonicalPatientRecord {
	return &models.CanonicalPatientRecord{
		CanonicalID: "c-1",
		FullName:    "Robert Green",
		DOB:         "1955-03-02",
		Phone:       "+12055550100",
		Identifiers: map[string][]string{"roster": {"R1"}},
		Members:     []string{"roster:R1"},
	}
}

func TestBuildNewRecord(t *testing.T) {
	t1 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	got, err := testBuilder(t1).Build(complete(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("version = %d", got.Version)
	}
	if !got.CreatedAt.Equal(t1) || !got.UpdatedAt.Equal(t1) || !got.ValidatedAt.Equal(t1) {
		t.Fatalf("timestamps not stamped: %+v", got)
	}
	if got.Incomplete {
		t.Fatal("complete record flagged incomplete")
	}
}

func TestBuildBumpsVersionOnlyOnChange(t *testing.T) {
	t1 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	first, err := testBuilder(t1).Build(complete(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Unchanged content re-built later keeps version and update time.
	same, err := testBuilder(t2).Build(complete(), &first.CanonicalPatientRecord)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if same.Version != 1 {
		t.Fatalf("unchanged rebuild bumped version to %d", same.Version)
	}
	if !same.UpdatedAt.Equal(t1) {
		t.Fatalf("unchanged rebuild moved updated_at to %v", same.UpdatedAt)
	}

	changed := complete()
	changed.Phone = "+12055550999"
	second, err := testBuilder(t2).Build(changed, &first.CanonicalPatientRecord)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("changed rebuild version = %d", second.Version)
	}
	if !second.UpdatedAt.Equal(t2) {
		t.Fatalf("changed rebuild updated_at = %v", second.UpdatedAt)
	}
	if !second.CreatedAt.Equal(t1) {
		t.Fatalf("created_at moved: %v", second.CreatedAt)
	}
}

func TestBuildFlagsIncompleteAndKeepsRecord(t *testing.T) {
	bare := &models.CanonicalPatientRecord{CanonicalID: "c-2"}
	got, err := testBuilder(time.Now()).Build(bare, nil)
	if err == nil {
		t.Fatal("expected schema error")
	}
	if !IsSchemaError(err) {
		t.Fatalf("unexpected error type: %v", err)
	}
	if got == nil {
		t.Fatal("record dropped on schema failure")
	}
	if !got.Incomplete {
		t.Fatal("record not flagged incomplete")
	}
	if got.Version != 1 {
		t.Fatalf("version = %d", got.Version)
	}
}

func TestBuildIdentifierSatisfiesContactRequirement(t *testing.T) {
	rec := complete()
	rec.Phone = ""
	if _, err := testBuilder(time.Now()).Build(rec, nil); err != nil {
		t.Fatalf("identifier-only record rejected: %v", err)
	}

	rec.Identifiers = nil
	if _, err := testBuilder(time.Now()).Build(rec, nil); !IsSchemaError(err) {
		t.Fatalf("expected schema error, got %v", err)
	}
}
