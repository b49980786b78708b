package sources

import (
	"github.com/carelink-health/platform/pkg/common/models"
	"github.com/carelink-health/platform/pkg/normalize"
)

// EnrollmentAdapter maps rows from the billing-program enrollment extract.
// The extract carries a single member name column and program flags that
// surface as tags on the common record.
type EnrollmentAdapter struct{}

func (EnrollmentAdapter) Origin() models.Origin {
	return models.OriginEnrollment
}

func (a EnrollmentAdapter) Adapt(row map[string]interface{}) (*models.SourceRecord, error) {
	id := getString(row, "member_id", "enrollment_id", "id")
	if id == "" {
		return nil, AdaptError{Origin: a.Origin(), reason: errMissingRecordID}
	}

	name := getString(row, "member_name", "name")
	if name == "" {
		return nil, AdaptError{Origin: a.Origin(), RowID: id, reason: errMissingName}
	}

	var phones []string
	if p := getString(row, "contact_phone", "phone"); p != "" {
		phones = append(phones, p)
	}

	tags := getStringSlice(row, "programs", "enrollment_flags")

	return &models.SourceRecord{
		Origin:         a.Origin(),
		OriginRecordID: id,
		FullName:       name,
		Phones:         phones,
		Email:          getString(row, "billing_email", "email"),
		DOB:            normalize.DOB(getString(row, "dob", "date_of_birth")),
		Address:        getString(row, "billing_address", "address"),
		Tags:           tags,
		Attributes:     originAttributes(row, "plan_code", "coverage_start", "coverage_end"),
	}, nil
}
