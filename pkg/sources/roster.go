package sources

import (
	"strings"

	"github.com/carelink-health/platform/pkg/common/models"
	"github.com/carelink-health/platform/pkg/normalize"
)

// RosterAdapter maps rows from the practice's demographic roster. The roster
// splits names into first/last columns and carries the fullest demographic
// detail of the three origins.
type RosterAdapter struct{}

func (RosterAdapter) Origin() models.Origin {
	return models.OriginRoster
}

func (a RosterAdapter) Adapt(row map[string]interface{}) (*models.SourceRecord, error) {
	id := getString(row, "patient_id", "id", "mrn")
	if id == "" {
		return nil, AdaptError{Origin: a.Origin(), reason: errMissingRecordID}
	}

	first := getString(row, "first_name", "given_name")
	last := getString(row, "last_name", "family_name")
	fullName := strings.TrimSpace(first + " " + last)
	if fullName == "" {
		fullName = getString(row, "name", "full_name")
	}
	if fullName == "" {
		return nil, AdaptError{Origin: a.Origin(), RowID: id, reason: errMissingName}
	}

	var phones []string
	for _, key := range []string{"phone", "home_phone", "mobile_phone"} {
		if p := getString(row, key); p != "" {
			phones = append(phones, p)
		}
	}

	address := getString(row, "address", "address_line")
	if address != "" {
		if locality := joinNonEmpty(getString(row, "city"), getString(row, "state"), getString(row, "zip")); locality != "" {
			address = address + ", " + locality
		}
	}

	return &models.SourceRecord{
		Origin:         a.Origin(),
		OriginRecordID: id,
		FullName:       fullName,
		Phones:         phones,
		Email:          getString(row, "email"),
		DOB:            normalize.DOB(getString(row, "date_of_birth", "dob", "birth_date")),
		Address:        address,
		Tags:           getStringSlice(row, "tags", "flags"),
		Attributes:     originAttributes(row, "sex", "language", "primary_provider"),
	}, nil
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func originAttributes(row map[string]interface{}, keys ...string) map[string]interface{} {
	attrs := make(map[string]interface{})
	for _, key := range keys {
		if v, ok := row[key]; ok && v != nil {
			attrs[key] = v
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
