package review

import (
	"time"

	"github.com/carelink-health/platform/pkg/common/models"
)

// DecisionModel persists a MatchDecision. One row per candidate pair;
// pending_review rows are the only ones that ever change, and exactly once.
type DecisionModel struct {
	ID         string     `gorm:"primaryKey;column:id"`
	PairKey    string     `gorm:"column:pair_key;uniqueIndex"`
	RecordA    string     `gorm:"column:record_a"`
	RecordB    string     `gorm:"column:record_b"`
	Tier       int        `gorm:"column:tier"`
	Score      float64    `gorm:"column:score"`
	State      string     `gorm:"column:state;index"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	ResolvedAt *time.Time `gorm:"column:resolved_at"`
	ResolvedBy string     `gorm:"column:resolved_by"`
}

func (DecisionModel) TableName() string {
	return "match_decisions"
}

func (m DecisionModel) toDomain() models.MatchDecision {
	return models.MatchDecision{
		ID:         m.ID,
		PairKey:    m.PairKey,
		RecordA:    m.RecordA,
		RecordB:    m.RecordB,
		Tier:       m.Tier,
		Score:      m.Score,
		State:      models.DecisionState(m.State),
		CreatedAt:  m.CreatedAt,
		ResolvedAt: m.ResolvedAt,
		ResolvedBy: m.ResolvedBy,
	}
}

// ExclusionModel records a reviewer's "no" for a specific pair. The matcher
// consults this before emitting a candidate, so a declined pair is never
// re-asked.
type ExclusionModel struct {
	PairKey    string    `gorm:"primaryKey;column:pair_key"`
	DecisionID string    `gorm:"column:decision_id"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (ExclusionModel) TableName() string {
	return "match_exclusions"
}
