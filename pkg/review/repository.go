package review

import (
	"context"
	"errors"
	"time"

	"github.com/carelink-health/platform/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrDecisionNotFound = errors.New("match decision not found")
	ErrAlreadyResolved  = errors.New("decision already resolved")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&DecisionModel{}, &ExclusionModel{})
}

func (r *Repository) GetByPairKey(ctx context.Context, pairKey string) (models.MatchDecision, error) {
	var row DecisionModel
	err := r.db.WithContext(ctx).Where("pair_key = ?", pairKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.MatchDecision{}, ErrDecisionNotFound
	}
	if err != nil {
		return models.MatchDecision{}, err
	}
	return row.toDomain(), nil
}

func (r *Repository) Create(ctx context.Context, decision *models.MatchDecision) error {
	if decision.ID == "" {
		decision.ID = uuid.New().String()
	}
	decision.CreatedAt = time.Now().UTC()
	row := DecisionModel{
		ID:        decision.ID,
		PairKey:   decision.PairKey,
		RecordA:   decision.RecordA,
		RecordB:   decision.RecordB,
		Tier:      decision.Tier,
		Score:     decision.Score,
		State:     string(decision.State),
		CreatedAt: decision.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// Supersede replaces an automatic routing with this run's scoring. The state
// guard keeps reviewer outcomes and open reviews untouched; if a reviewer won
// the race, the decision is reloaded so the caller sees the live state.
func (r *Repository) Supersede(ctx context.Context, decision *models.MatchDecision) error {
	result := r.db.WithContext(ctx).Model(&DecisionModel{}).
		Where("id = ? AND state IN ?", decision.ID, []string{
			string(models.DecisionAutoAccepted),
			string(models.DecisionRejectedAuto),
		}).
		Updates(map[string]interface{}{
			"tier":  decision.Tier,
			"score": decision.Score,
			"state": string(decision.State),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var row DecisionModel
		if err := r.db.WithContext(ctx).Where("id = ?", decision.ID).First(&row).Error; err != nil {
			return err
		}
		*decision = row.toDomain()
	}
	return nil
}

func (r *Repository) ListPending(ctx context.Context, limit int) ([]models.MatchDecision, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []DecisionModel
	err := r.db.WithContext(ctx).
		Where("state = ?", string(models.DecisionPendingReview)).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.MatchDecision, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// ListByStates returns every decision currently in one of the given states.
func (r *Repository) ListByStates(ctx context.Context, states ...models.DecisionState) ([]models.MatchDecision, error) {
	values := make([]string, 0, len(states))
	for _, s := range states {
		values = append(values, string(s))
	}
	var rows []DecisionModel
	err := r.db.WithContext(ctx).Where("state IN ?", values).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.MatchDecision, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// Resolve flips a pending decision to its terminal reviewer state. The
// state guard in the UPDATE makes the transition happen exactly once even
// under concurrent reviewers.
func (r *Repository) Resolve(ctx context.Context, decisionID string, outcome models.DecisionState, resolvedBy string) (models.MatchDecision, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&DecisionModel{}).
		Where("id = ? AND state = ?", decisionID, string(models.DecisionPendingReview)).
		Updates(map[string]interface{}{
			"state":       string(outcome),
			"resolved_at": now,
			"resolved_by": resolvedBy,
		})
	if result.Error != nil {
		return models.MatchDecision{}, result.Error
	}
	if result.RowsAffected == 0 {
		var row DecisionModel
		err := r.db.WithContext(ctx).Where("id = ?", decisionID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.MatchDecision{}, ErrDecisionNotFound
		}
		if err != nil {
			return models.MatchDecision{}, err
		}
		return row.toDomain(), ErrAlreadyResolved
	}

	var row DecisionModel
	if err := r.db.WithContext(ctx).Where("id = ?", decisionID).First(&row).Error; err != nil {
		return models.MatchDecision{}, err
	}
	return row.toDomain(), nil
}

func (r *Repository) AddExclusion(ctx context.Context, pairKey, decisionID string) error {
	row := ExclusionModel{
		PairKey:    pairKey,
		DecisionID: decisionID,
		CreatedAt:  time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Create(&row).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

// Exclusions returns the full declined-pair set as a lookup map.
func (r *Repository) Exclusions(ctx context.Context) (map[string]struct{}, error) {
	var rows []ExclusionModel
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		out[row.PairKey] = struct{}{}
	}
	return out, nil
}
