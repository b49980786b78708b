package sources

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/carelink-health/platform/pkg/common/logger"
	"github.com/carelink-health/platform/pkg/common/models"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func TestRosterAdapter(t *testing.T) {
	row := map[string]interface{}{
		"patient_id":    "R-1001",
		"first_name":    "Robert",
		"last_name":     "Green",
		"date_of_birth": "03/02/1955",
		"phone":         "205-555-0100",
		"mobile_phone":  "205-555-0199",
		"email":         "rgreen@example.com",
		"address":       "14 Oak St",
		"city":          "Birmingham",
		"state":         "AL",
		"zip":           "35203",
		"tags":          []interface{}{"diabetic-outreach"},
	}

	rec, err := RosterAdapter{}.Adapt(row)
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	if rec.Origin != models.OriginRoster || rec.OriginRecordID != "R-1001" {
		t.Fatalf("identity wrong: %+v", rec)
	}
	if rec.FullName != "Robert Green" {
		t.Fatalf("name = %q", rec.FullName)
	}
	if len(rec.Phones) != 2 {
		t.Fatalf("phones = %v", rec.Phones)
	}
	if rec.DOB != "1955-03-02" {
		t.Fatalf("dob = %q", rec.DOB)
	}
	if rec.Address != "14 Oak St, Birmingham AL 35203" {
		t.Fatalf("address = %q", rec.Address)
	}
	if len(rec.Tags) != 1 || rec.Tags[0] != "diabetic-outreach" {
		t.Fatalf("tags = %v", rec.Tags)
	}
}

func TestEnrollmentAdapter(t *testing.T) {
	row := map[string]interface{}{
		"member_id":     "E-77",
		"member_name":   "Jane Smith",
		"dob":           "1955-03-02",
		"contact_phone": "(205) 555-0100",
		"programs":      "chronic-care, wellness",
	}

	rec, err := EnrollmentAdapter{}.Adapt(row)
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	if rec.Origin != models.OriginEnrollment || rec.OriginRecordID != "E-77" {
		t.Fatalf("identity wrong: %+v", rec)
	}
	if len(rec.Tags) != 2 || rec.Tags[0] != "chronic-care" || rec.Tags[1] != "wellness" {
		t.Fatalf("program tags = %v", rec.Tags)
	}
}

func TestDirectoryAdapterMultiplePhones(t *testing.T) {
	row := map[string]interface{}{
		"contact_id":    "D-5",
		"display_name":  "Bob Green",
		"phone_numbers": []interface{}{"+12055550100", "205-555-0188"},
	}

	rec, err := DirectoryAdapter{}.Adapt(row)
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	if len(rec.Phones) != 2 {
		t.Fatalf("phones = %v", rec.Phones)
	}
}

func TestAdaptMissingIdentifier(t *testing.T) {
	adapters := []Adapter{RosterAdapter{}, EnrollmentAdapter{}, DirectoryAdapter{}}
	for _, a := range adapters {
		_, err := a.Adapt(map[string]interface{}{"name": "Nobody"})
		var ae AdaptError
		if !errors.As(err, &ae) {
			t.Errorf("%s: expected AdaptError, got %v", a.Origin(), err)
		}
	}
}

func TestRegistryUnknownOrigin(t *testing.T) {
	if _, err := DefaultRegistry().ForOrigin(models.Origin("fax")); !errors.Is(err, ErrUnknownOrigin) {
		t.Fatalf("expected ErrUnknownOrigin, got %v", err)
	}
}

type fakeStore struct {
	saved  []models.SourceRecord
	failOn string
}

func (f *fakeStore) Save(_ context.Context, rec *models.SourceRecord) error {
	if rec.OriginRecordID == f.failOn {
		return errors.New("storage down")
	}
	rec.Generation = 1
	f.saved = append(f.saved, *rec)
	return nil
}

func (f *fakeStore) Retract(context.Context, models.Origin, string) error { return nil }

func (f *fakeStore) ListByOrigin(context.Context, models.Origin, int) ([]models.SourceRecord, error) {
	return nil, nil
}

type fakePublisher struct {
	events []map[string]interface{}
	err    error
}

func (f *fakePublisher) PublishEvent(_ context.Context, _, _ string, data map[string]interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, data)
	return nil
}

func TestIngestRowsFallsBackToDLQ(t *testing.T) {
	store := &fakeStore{}
	producer := &fakePublisher{err: errors.New("broker unavailable")}
	dlq := &fakePublisher{}
	svc := NewService(DefaultRegistry(), store, producer, dlq)

	rows := []map[string]interface{}{
		{"patient_id": "R-1", "first_name": "Ada", "last_name": "Lovelace"},
	}
	resp, err := svc.IngestRows(context.Background(), models.OriginRoster, rows)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if resp.Accepted != 1 {
		t.Fatalf("accepted = %d", resp.Accepted)
	}
	if len(dlq.events) != 1 || dlq.events[0]["origin_record_id"] != "R-1" {
		t.Fatalf("dlq events = %v", dlq.events)
	}
}

func TestIngestRowsIsolatesFailures(t *testing.T) {
	store := &fakeStore{failOn: "R-2"}
	svc := NewService(DefaultRegistry(), store, nil, nil)

	rows := []map[string]interface{}{
		{"patient_id": "R-1", "first_name": "Ada", "last_name": "Lovelace"},
		{"first_name": "No", "last_name": "ID"}, // malformed: no identifier
		{"patient_id": "R-2", "first_name": "Fails", "last_name": "Storage"},
		{"patient_id": "R-3", "first_name": "Grace", "last_name": "Hopper"},
	}

	resp, err := svc.IngestRows(context.Background(), models.OriginRoster, rows)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if resp.Accepted != 2 || resp.Skipped != 2 {
		t.Fatalf("accepted=%d skipped=%d, want 2/2", resp.Accepted, resp.Skipped)
	}
	if len(resp.Errors) != 2 {
		t.Fatalf("errors = %v", resp.Errors)
	}
	if len(store.saved) != 2 || store.saved[0].OriginRecordID != "R-1" || store.saved[1].OriginRecordID != "R-3" {
		t.Fatalf("saved = %v", store.saved)
	}
}
