package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/carelink-health/platform/pkg/common/logger"
	"github.com/carelink-health/platform/pkg/common/models"
)

var ErrInvalidOutcome = errors.New("invalid review outcome")

// Store is the persistence surface the review queue needs.
type Store interface {
	GetByPairKey(ctx context.Context, pairKey string) (models.MatchDecision, error)
	Create(ctx context.Context, decision *models.MatchDecision) error
	Supersede(ctx context.Context, decision *models.MatchDecision) error
	ListPending(ctx context.Context, limit int) ([]models.MatchDecision, error)
	ListByStates(ctx context.Context, states ...models.DecisionState) ([]models.MatchDecision, error)
	Resolve(ctx context.Context, decisionID string, outcome models.DecisionState, resolvedBy string) (models.MatchDecision, error)
	AddExclusion(ctx context.Context, pairKey, decisionID string) error
	Exclusions(ctx context.Context) (map[string]struct{}, error)
}

type notifier interface {
	PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error
}

type Service struct {
	store    Store
	notifier notifier
}

func NewService(store Store, notifier notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// RecordCandidate persists the routed decision for a candidate pair.
// Reviewer outcomes and open reviews stick across runs; automatic routings
// are superseded when the pair re-scores, so a weak rejection never outlives
// stronger evidence. Only a reviewer decline excludes a pair for good.
func (s *Service) RecordCandidate(ctx context.Context, cand models.MatchCandidate, state models.DecisionState) (models.MatchDecision, error) {
	existing, err := s.store.GetByPairKey(ctx, cand.PairKey())
	if err == nil {
		return s.refresh(ctx, existing, cand, state)
	}
	if !errors.Is(err, ErrDecisionNotFound) {
		return models.MatchDecision{}, err
	}

	decision := models.MatchDecision{
		PairKey: cand.PairKey(),
		RecordA: cand.RecordA,
		RecordB: cand.RecordB,
		Tier:    cand.Tier,
		Score:   cand.Score,
		State:   state,
	}
	if err := s.store.Create(ctx, &decision); err != nil {
		return models.MatchDecision{}, err
	}

	if state == models.DecisionPendingReview {
		s.notifyPending(ctx, decision)
	}
	return decision, nil
}

// refresh reconciles an existing decision with this run's scoring.
func (s *Service) refresh(ctx context.Context, existing models.MatchDecision, cand models.MatchCandidate, state models.DecisionState) (models.MatchDecision, error) {
	switch existing.State {
	case models.DecisionPendingReview, models.DecisionConfirmed, models.DecisionDeclined:
		return existing, nil
	}
	if existing.State == state && existing.Tier == cand.Tier && existing.Score == cand.Score {
		return existing, nil
	}

	existing.Tier = cand.Tier
	existing.Score = cand.Score
	existing.State = state
	if err := s.store.Supersede(ctx, &existing); err != nil {
		return models.MatchDecision{}, err
	}

	if existing.State == models.DecisionPendingReview {
		s.notifyPending(ctx, existing)
	}
	return existing, nil
}

// Resolve applies a reviewer's outcome to a pending decision. Declining adds
// the pair to the exclusion list so it is never proposed again.
func (s *Service) Resolve(ctx context.Context, decisionID, outcome, resolvedBy string) (models.MatchDecision, error) {
	var state models.DecisionState
	switch outcome {
	case "confirmed":
		state = models.DecisionConfirmed
	case "declined":
		state = models.DecisionDeclined
	default:
		return models.MatchDecision{}, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	decision, err := s.store.Resolve(ctx, decisionID, state, resolvedBy)
	if err != nil {
		return decision, err
	}

	if state == models.DecisionDeclined {
		if err := s.store.AddExclusion(ctx, decision.PairKey, decision.ID); err != nil {
			return decision, fmt.Errorf("recording exclusion: %w", err)
		}
	}

	logger.Log.WithFields(map[string]interface{}{
		"decision_id": decision.ID,
		"pair_key":    decision.PairKey,
		"state":       decision.State,
	}).Info("review decision resolved")
	return decision, nil
}

func (s *Service) Pending(ctx context.Context, limit int) ([]models.MatchDecision, error) {
	return s.store.ListPending(ctx, limit)
}

// AcceptedPairs returns every pair the merger should treat as linked:
// auto-accepted plus reviewer-confirmed.
func (s *Service) AcceptedPairs(ctx context.Context) ([]models.MatchDecision, error) {
	return s.store.ListByStates(ctx, models.DecisionAutoAccepted, models.DecisionConfirmed)
}

func (s *Service) Exclusions(ctx context.Context) (map[string]struct{}, error) {
	return s.store.Exclusions(ctx)
}

func (s *Service) notifyPending(ctx context.Context, decision models.MatchDecision) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.PublishEvent(ctx, "review-pending", "consolidation-service", map[string]interface{}{
		"decision_id": decision.ID,
		"pair_key":    decision.PairKey,
		"record_a":    decision.RecordA,
		"record_b":    decision.RecordB,
		"tier":        decision.Tier,
		"score":       decision.Score,
	})
	if err != nil {
		logger.Log.WithError(err).Error("failed to publish review-pending event")
	}
}
