package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/carelink-health/platform/pkg/canonical"
	"github.com/carelink-health/platform/pkg/common/logger"
	"github.com/carelink-health/platform/pkg/common/models"
	"github.com/carelink-health/platform/pkg/match"
	"github.com/carelink-health/platform/pkg/merge"
	"github.com/carelink-health/platform/pkg/observability/metrics"
	"github.com/google/uuid"
)

var ErrRunInProgress = errors.New("a consolidation run is already in progress")

// PoolSource supplies the latest non-retracted generation of every source
// record.
type PoolSource interface {
	LatestPool(ctx context.Context) ([]models.SourceRecord, error)
}

// CanonicalStore persists canonical patient records across runs.
type CanonicalStore interface {
	LoadAll(ctx context.Context) ([]models.CanonicalPatientRecord, error)
	Upsert(ctx context.Context, rec *models.ValidatedRecord) error
	MarkInactive(ctx context.Context, canonicalIDs []string) error
}

// Reviews is the decision surface the pipeline routes candidates through.
type Reviews interface {
	RecordCandidate(ctx context.Context, cand models.MatchCandidate, state models.DecisionState) (models.MatchDecision, error)
	AcceptedPairs(ctx context.Context) ([]models.MatchDecision, error)
	Exclusions(ctx context.Context) (map[string]struct{}, error)
}

// Locker serializes runs; only one writer may rebuild canonicals at a time.
type Locker interface {
	Acquire(ctx context.Context, token string) (bool, error)
	Release(ctx context.Context, token string) error
}

type summaryStore interface {
	Store(ctx context.Context, summary models.RunSummary) error
	Latest(ctx context.Context) (models.RunSummary, error)
}

// Publisher is the event bus surface canonical updates are emitted on.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error
}

// Service runs the consolidation pipeline: match the pool, route decisions,
// cluster accepted pairs, merge each cluster, validate, persist, and emit
// canonical-updated events. Each run is a full recompute.
type Service struct {
	pool       PoolSource
	canonicals CanonicalStore
	reviews    Reviews
	matcher    *match.Matcher
	merger     *merge.Merger
	builder    *canonical.Builder
	lock       Locker
	summaries  summaryStore
	producer   Publisher
	dlq        Publisher

	dirty atomic.Bool
}

func NewService(pool PoolSource, canonicals CanonicalStore, reviews Reviews, matcher *match.Matcher, merger *merge.Merger, builder *canonical.Builder, lock Locker, summaries summaryStore, producer, dlq Publisher) *Service {
	return &Service{
		pool:       pool,
		canonicals: canonicals,
		reviews:    reviews,
		matcher:    matcher,
		merger:     merger,
		builder:    builder,
		lock:       lock,
		summaries:  summaries,
		producer:   producer,
		dlq:        dlq,
	}
}

// Execute performs one consolidation run. Returns ErrRunInProgress when
// another instance holds the run lock.
func (s *Service) Execute(ctx context.Context) (models.RunSummary, error) {
	runID := uuid.New().String()

	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, runID)
		if err != nil {
			return models.RunSummary{}, err
		}
		if !acquired {
			return models.RunSummary{}, ErrRunInProgress
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), runID); err != nil {
				logger.Log.WithError(err).Warn("failed to release run lock")
			}
		}()
	}

	summary := models.RunSummary{RunID: runID, StartedAt: time.Now().UTC()}
	log := logger.Log.WithField("run_id", runID)
	log.Info("consolidation run started")

	pool, err := s.pool.LatestPool(ctx)
	if err != nil {
		return summary, err
	}
	summary.PoolSize = len(pool)

	existing, err := s.canonicals.LoadAll(ctx)
	if err != nil {
		return summary, err
	}

	excluded, err := s.reviews.Exclusions(ctx)
	if err != nil {
		return summary, err
	}

	candidates := s.matcher.FindCandidates(pool, excluded)
	summary.Candidates = len(candidates)

	for _, cand := range candidates {
		decision, err := s.reviews.RecordCandidate(ctx, cand, s.matcher.Route(cand.Score))
		if err != nil {
			// One bad pair must not sink the run.
			log.WithError(err).WithField("pair_key", cand.PairKey()).Error("failed to record match decision")
			continue
		}
		switch decision.State {
		case models.DecisionAutoAccepted:
			summary.AutoAccepted++
		case models.DecisionPendingReview:
			summary.PendingReview++
		case models.DecisionRejectedAuto:
			summary.RejectedAuto++
		}
	}

	accepted, err := s.reviews.AcceptedPairs(ctx)
	if err != nil {
		return summary, err
	}

	clusters := buildClusters(pool, accepted)
	summary.Clusters = len(clusters)

	assigned := s.persistClusters(ctx, clusters, existing, &summary)

	if err := s.retireOrphans(ctx, existing, assigned); err != nil {
		log.WithError(err).Error("failed to retire orphaned canonicals")
	}

	summary.CompletedAt = time.Now().UTC()
	metrics.ObserveRun(summary.PoolSize, summary.Candidates, summary.PendingReview,
		summary.IncompleteRecords, int64(summary.CompletedAt.Sub(summary.StartedAt).Seconds()))
	if s.summaries != nil {
		if err := s.summaries.Store(ctx, summary); err != nil {
			log.WithError(err).Warn("failed to cache run summary")
		}
	}

	log.WithFields(map[string]interface{}{
		"pool_size":      summary.PoolSize,
		"candidates":     summary.Candidates,
		"clusters":       summary.Clusters,
		"new_canonicals": summary.NewCanonicals,
		"updated":        summary.UpdatedCanonicals,
		"incomplete":     summary.IncompleteRecords,
	}).Info("consolidation run completed")
	return summary, nil
}

// persistClusters merges, validates, and stores each cluster, and returns the
// set of canonical IDs still in use.
func (s *Service) persistClusters(ctx context.Context, clusters [][]models.SourceRecord, existing []models.CanonicalPatientRecord, summary *models.RunSummary) map[string]struct{} {
	byMember := make(map[string]*models.CanonicalPatientRecord)
	for i := range existing {
		for _, member := range existing[i].Members {
			byMember[member] = &existing[i]
		}
	}

	assigned := make(map[string]struct{}, len(clusters))
	for _, cluster := range clusters {
		prior := chooseCanonical(cluster, byMember)

		merged := s.merger.Merge(cluster, prior)
		if merged == nil {
			continue
		}

		validated, err := s.builder.Build(merged, prior)
		if canonical.IsSchemaError(err) {
			summary.IncompleteRecords++
			logger.Log.WithError(err).WithField("canonical_id", merged.CanonicalID).Warn("canonical record incomplete")
		} else if err != nil {
			logger.Log.WithError(err).Error("failed to build canonical record")
			// The cluster still claims its prior canonical: a failed write
			// must not look like an orphan to retirement.
			if prior != nil {
				assigned[prior.CanonicalID] = struct{}{}
			}
			continue
		}

		if err := s.canonicals.Upsert(ctx, validated); err != nil {
			logger.Log.WithError(err).WithField("canonical_id", validated.CanonicalID).Error("failed to persist canonical record")
			if prior != nil {
				assigned[prior.CanonicalID] = struct{}{}
			}
			continue
		}
		assigned[validated.CanonicalID] = struct{}{}

		switch {
		case prior == nil:
			summary.NewCanonicals++
			s.publishCanonical(ctx, validated)
		case validated.Version != prior.Version || prior.Inactive:
			summary.UpdatedCanonicals++
			s.publishCanonical(ctx, validated)
		}
	}
	return assigned
}

// chooseCanonical keeps canonical IDs stable: the cluster inherits the ID of
// the existing canonical any of its members belonged to. When accepted pairs
// bridge several existing canonicals, the oldest one survives and the rest
// are retired.
func chooseCanonical(cluster []models.SourceRecord, byMember map[string]*models.CanonicalPatientRecord) *models.CanonicalPatientRecord {
	seen := make(map[string]*models.CanonicalPatientRecord)
	for _, rec := range cluster {
		if prior, ok := byMember[rec.Key()]; ok {
			seen[prior.CanonicalID] = prior
		}
	}
	if len(seen) == 0 {
		return nil
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := seen[ids[i]], seen[ids[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CanonicalID < b.CanonicalID
	})
	return seen[ids[0]]
}

// retireOrphans marks active canonicals that no cluster claimed this run.
// Their every member retracted or was absorbed into a surviving canonical.
func (s *Service) retireOrphans(ctx context.Context, existing []models.CanonicalPatientRecord, assigned map[string]struct{}) error {
	var orphans []string
	for _, rec := range existing {
		if rec.Inactive {
			continue
		}
		if _, ok := assigned[rec.CanonicalID]; !ok {
			orphans = append(orphans, rec.CanonicalID)
		}
	}
	return s.canonicals.MarkInactive(ctx, orphans)
}

func (s *Service) publishCanonical(ctx context.Context, rec *models.ValidatedRecord) {
	if s.producer == nil {
		return
	}
	data := map[string]interface{}{
		"canonical_id": rec.CanonicalID,
		"version":      rec.Version,
		"full_name":    rec.FullName,
		"members":      rec.Members,
		"incomplete":   rec.Incomplete,
		"validated_at": rec.ValidatedAt,
	}
	if err := s.producer.PublishEvent(ctx, "canonical-updated", "consolidation-service", data); err != nil {
		logger.Log.WithError(err).WithField("canonical_id", rec.CanonicalID).Error("failed to publish canonical-updated event")
		if s.dlq != nil {
			if dlqErr := s.dlq.PublishEvent(ctx, "canonical-updated", "consolidation-service", data); dlqErr != nil {
				logger.Log.WithError(dlqErr).Error("failed to publish canonical-updated event to DLQ")
			}
		}
	}
}

// LatestSummary returns the cached report of the most recent run.
func (s *Service) LatestSummary(ctx context.Context) (models.RunSummary, error) {
	if s.summaries == nil {
		return models.RunSummary{}, ErrNoRun
	}
	return s.summaries.Latest(ctx)
}

// MarkDirty flags that source data changed since the last run. Used by the
// auto-run loop.
func (s *Service) MarkDirty() {
	s.dirty.Store(true)
}

// StartAutoRuns triggers a run on the given interval whenever new source data
// arrived since the previous run. Blocks until ctx is done.
func (s *Service) StartAutoRuns(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.dirty.Swap(false) {
				continue
			}
			if _, err := s.Execute(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
				logger.Log.WithError(err).Error("scheduled consolidation run failed")
			}
		}
	}
}
