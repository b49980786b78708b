package canonical

import (
	"context"
	"errors"

	"github.com/carelink-health/platform/pkg/common/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrPatientNotFound = errors.New("canonical patient not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&PatientModel{})
}

// LoadAll returns every canonical record, inactive included, so the pipeline
// can keep canonical_id assignment stable across runs.
func (r *Repository) LoadAll(ctx context.Context) ([]models.CanonicalPatientRecord, error) {
	var rows []PatientModel
	if err := r.db.WithContext(ctx).Order("canonical_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.CanonicalPatientRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// Upsert writes a validated record, replacing the prior version of the same
// canonical_id.
func (r *Repository) Upsert(ctx context.Context, rec *models.ValidatedRecord) error {
	row := fromDomain(rec.CanonicalPatientRecord)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "canonical_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}

// MarkInactive flags canonicals whose every contributing source retracted.
// Records are never deleted.
func (r *Repository) MarkInactive(ctx context.Context, canonicalIDs []string) error {
	if len(canonicalIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&PatientModel{}).
		Where("canonical_id IN ?", canonicalIDs).
		Update("inactive", true).Error
}

func (r *Repository) Get(ctx context.Context, canonicalID string) (models.CanonicalPatientRecord, error) {
	var row PatientModel
	err := r.db.WithContext(ctx).Where("canonical_id = ?", canonicalID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CanonicalPatientRecord{}, ErrPatientNotFound
	}
	if err != nil {
		return models.CanonicalPatientRecord{}, err
	}
	return row.toDomain(), nil
}

func (r *Repository) List(ctx context.Context, limit int, includeInactive bool) ([]models.CanonicalPatientRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).Order("full_name, canonical_id").Limit(limit)
	if !includeInactive {
		query = query.Where("inactive = ?", false)
	}
	var rows []PatientModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.CanonicalPatientRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
