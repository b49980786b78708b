package sources

import (
	"context"
	"errors"
	"time"

	"github.com/carelink-health/platform/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrRecordNotFound = errors.New("source record not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&RecordModel{})
}

// Save appends a new generation for the record's (origin, origin_record_id).
// The first generation's timestamp is carried forward so re-ingests never
// shift tie-break ordering.
func (r *Repository) Save(ctx context.Context, rec *models.SourceRecord) error {
	now := time.Now().UTC()
	firstSeen := now
	generation := 1

	var prev RecordModel
	err := r.db.WithContext(ctx).
		Where("origin = ? AND origin_record_id = ?", string(rec.Origin), rec.OriginRecordID).
		Order("generation DESC").
		First(&prev).Error
	switch {
	case err == nil:
		generation = prev.Generation + 1
		firstSeen = prev.FirstSeenAt
	case errors.Is(err, gorm.ErrRecordNotFound):
		// first sighting
	default:
		return err
	}

	row := RecordModel{
		ID:             uuid.New().String(),
		Origin:         string(rec.Origin),
		OriginRecordID: rec.OriginRecordID,
		Generation:     generation,
		FullName:       rec.FullName,
		Phones:         datatypes.NewJSONSlice(rec.Phones),
		Email:          rec.Email,
		DOB:            rec.DOB,
		Address:        rec.Address,
		Tags:           datatypes.NewJSONSlice(rec.Tags),
		Attributes:     datatypes.JSONMap(rec.Attributes),
		FirstSeenAt:    firstSeen,
		IngestedAt:     now,
		Retracted:      false,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}

	rec.ID = row.ID
	rec.Generation = generation
	rec.IngestedAt = firstSeen
	return nil
}

// Retract appends a retraction generation. The history stays intact; the
// record simply drops out of the match pool.
func (r *Repository) Retract(ctx context.Context, origin models.Origin, originRecordID string) error {
	var prev RecordModel
	err := r.db.WithContext(ctx).
		Where("origin = ? AND origin_record_id = ?", string(origin), originRecordID).
		Order("generation DESC").
		First(&prev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	if err != nil {
		return err
	}
	if prev.Retracted {
		return nil
	}

	next := prev
	next.ID = uuid.New().String()
	next.Generation = prev.Generation + 1
	next.IngestedAt = time.Now().UTC()
	next.Retracted = true
	return r.db.WithContext(ctx).Create(&next).Error
}

// LatestPool returns the newest generation of every non-retracted record
// across all origins. This is the full pool the matcher runs over.
func (r *Repository) LatestPool(ctx context.Context) ([]models.SourceRecord, error) {
	latest := r.db.Model(&RecordModel{}).
		Select("origin, origin_record_id, MAX(generation) AS generation").
		Group("origin, origin_record_id")

	var rows []RecordModel
	err := r.db.WithContext(ctx).
		Joins("JOIN (?) latest ON source_records.origin = latest.origin AND source_records.origin_record_id = latest.origin_record_id AND source_records.generation = latest.generation", latest).
		Where("source_records.retracted = ?", false).
		Order("source_records.origin, source_records.origin_record_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	pool := make([]models.SourceRecord, 0, len(rows))
	for _, row := range rows {
		pool = append(pool, row.toDomain())
	}
	return pool, nil
}

// ListByOrigin returns the latest generation of records for one origin,
// retracted included, for the intake API.
func (r *Repository) ListByOrigin(ctx context.Context, origin models.Origin, limit int) ([]models.SourceRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	latest := r.db.Model(&RecordModel{}).
		Select("origin, origin_record_id, MAX(generation) AS generation").
		Where("origin = ?", string(origin)).
		Group("origin, origin_record_id")

	var rows []RecordModel
	err := r.db.WithContext(ctx).
		Joins("JOIN (?) latest ON source_records.origin = latest.origin AND source_records.origin_record_id = latest.origin_record_id AND source_records.generation = latest.generation", latest).
		Order("source_records.origin_record_id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]models.SourceRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toDomain())
	}
	return records, nil
}
