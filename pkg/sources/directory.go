package sources

import (
	"github.com/carelink-health/platform/pkg/common/models"
	"github.com/carelink-health/platform/pkg/normalize"
)

// DirectoryAdapter maps contacts from the messaging-platform directory. The
// directory rarely has a date of birth but is the freshest source of live
// phone numbers, and a contact may list several.
type DirectoryAdapter struct{}

func (DirectoryAdapter) Origin() models.Origin {
	return models.OriginDirectory
}

func (a DirectoryAdapter) Adapt(row map[string]interface{}) (*models.SourceRecord, error) {
	id := getString(row, "contact_id", "id")
	if id == "" {
		return nil, AdaptError{Origin: a.Origin(), reason: errMissingRecordID}
	}

	name := getString(row, "display_name", "name")
	if name == "" {
		return nil, AdaptError{Origin: a.Origin(), RowID: id, reason: errMissingName}
	}

	phones := getStringSlice(row, "phone_numbers", "phones")
	if len(phones) == 0 {
		if p := getString(row, "phone"); p != "" {
			phones = []string{p}
		}
	}

	return &models.SourceRecord{
		Origin:         a.Origin(),
		OriginRecordID: id,
		FullName:       name,
		Phones:         phones,
		Email:          getString(row, "email"),
		DOB:            normalize.DOB(getString(row, "dob")),
		Address:        getString(row, "address"),
		Tags:           getStringSlice(row, "labels"),
		Attributes:     originAttributes(row, "platform", "opted_out", "last_message_at"),
	}, nil
}
