package canonical

import (
	"time"

	"github.com/carelink-health/platform/pkg/common/models"
	"gorm.io/datatypes"
)

// PatientModel persists a canonical patient record. Rows are never deleted;
// a patient whose every contributing source retracts is marked inactive.
type PatientModel struct {
	CanonicalID string                      `gorm:"primaryKey;column:canonical_id"`
	FullName    string                      `gorm:"column:full_name"`
	DOB         string                      `gorm:"column:dob"`
	Phone       string                      `gorm:"column:phone;index"`
	Email       string                      `gorm:"column:email"`
	Address     string                      `gorm:"column:address"`
	AltPhones   datatypes.JSONSlice[string] `gorm:"column:alt_phones"`
	Identifiers datatypes.JSONMap           `gorm:"column:identifiers"`
	Tags        datatypes.JSONSlice[string] `gorm:"column:tags"`
	Provenance  datatypes.JSONMap           `gorm:"column:provenance"`
	Members     datatypes.JSONSlice[string] `gorm:"column:members"`
	Version     int                         `gorm:"column:version"`
	Incomplete  bool                        `gorm:"column:incomplete"`
	Inactive    bool                        `gorm:"column:inactive;index"`
	CreatedAt   time.Time                   `gorm:"column:created_at"`
	UpdatedAt   time.Time                   `gorm:"column:updated_at"`
}

func (PatientModel) TableName() string {
	return "canonical_patients"
}

func (m PatientModel) toDomain() models.CanonicalPatientRecord {
	return models.CanonicalPatientRecord{
		CanonicalID: m.CanonicalID,
		FullName:    m.FullName,
		DOB:         m.DOB,
		Phone:       m.Phone,
		Email:       m.Email,
		Address:     m.Address,
		AltPhones:   []string(m.AltPhones),
		Identifiers: fromJSONMap(m.Identifiers),
		Tags:        []string(m.Tags),
		Provenance:  fromJSONMap(m.Provenance),
		Members:     []string(m.Members),
		Version:     m.Version,
		Incomplete:  m.Incomplete,
		Inactive:    m.Inactive,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func fromDomain(rec models.CanonicalPatientRecord) PatientModel {
	return PatientModel{
		CanonicalID: rec.CanonicalID,
		FullName:    rec.FullName,
		DOB:         rec.DOB,
		Phone:       rec.Phone,
		Email:       rec.Email,
		Address:     rec.Address,
		AltPhones:   datatypes.NewJSONSlice(rec.AltPhones),
		Identifiers: toJSONMap(rec.Identifiers),
		Tags:        datatypes.NewJSONSlice(rec.Tags),
		Provenance:  toJSONMap(rec.Provenance),
		Members:     datatypes.NewJSONSlice(rec.Members),
		Version:     rec.Version,
		Incomplete:  rec.Incomplete,
		Inactive:    rec.Inactive,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func toJSONMap(in map[string][]string) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(in))
	for k, v := range in {
		items := make([]interface{}, 0, len(v))
		for _, s := range v {
			items = append(items, s)
		}
		out[k] = items
	}
	return out
}

func fromJSONMap(in datatypes.JSONMap) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		switch items := v.(type) {
		case []interface{}:
			values := make([]string, 0, len(items))
			for _, item := range items {
				if s, ok := item.(string); ok {
					values = append(values, s)
				}
			}
			out[k] = values
		case []string:
			out[k] = items
		}
	}
	return out
}
