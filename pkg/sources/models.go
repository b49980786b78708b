package sources

import (
	"time"

	"github.com/carelink-health/platform/pkg/common/models"
	"gorm.io/datatypes"
)

// RecordModel is the persisted form of a SourceRecord. Rows are append-only:
// re-ingesting the same origin row writes a new generation instead of
// mutating history, and retraction is itself a new generation.
type RecordModel struct {
	ID             string                      `gorm:"primaryKey;column:id"`
	Origin         string                      `gorm:"column:origin;index:idx_source_origin_record"`
	OriginRecordID string                      `gorm:"column:origin_record_id;index:idx_source_origin_record"`
	Generation     int                         `gorm:"column:generation"`
	FullName       string                      `gorm:"column:full_name"`
	Phones         datatypes.JSONSlice[string] `gorm:"column:phones"`
	Email          string                      `gorm:"column:email"`
	DOB            string                      `gorm:"column:dob"`
	Address        string                      `gorm:"column:address"`
	Tags           datatypes.JSONSlice[string] `gorm:"column:tags"`
	Attributes     datatypes.JSONMap           `gorm:"column:attributes"`
	FirstSeenAt    time.Time                   `gorm:"column:first_seen_at"`
	IngestedAt     time.Time                   `gorm:"column:ingested_at"`
	Retracted      bool                        `gorm:"column:retracted"`
}

func (RecordModel) TableName() string {
	return "source_records"
}

func (m RecordModel) toDomain() models.SourceRecord {
	return models.SourceRecord{
		ID:             m.ID,
		Origin:         models.Origin(m.Origin),
		OriginRecordID: m.OriginRecordID,
		Generation:     m.Generation,
		FullName:       m.FullName,
		Phones:         []string(m.Phones),
		Email:          m.Email,
		DOB:            m.DOB,
		Address:        m.Address,
		Tags:           []string(m.Tags),
		Attributes:     map[string]interface{}(m.Attributes),
		// FirstSeenAt is the stable timestamp: tie-breaks must not move when
		// an unchanged row is re-ingested.
		IngestedAt: m.FirstSeenAt,
		Retracted:  m.Retracted,
	}
}
