package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	intakeAccepted     atomic.Int64
	intakeSkipped      atomic.Int64
	poolSize           atomic.Int64
	matchCandidates    atomic.Int64
	pendingReviews     atomic.Int64
	incompleteRecords  atomic.Int64
	runDurationSeconds atomic.Int64
	runsCompleted      atomic.Int64
)

// ObserveIntake accumulates per-batch intake outcomes.
func ObserveIntake(accepted, skipped int) {
	intakeAccepted.Add(int64(accepted))
	intakeSkipped.Add(int64(skipped))
}

// ObserveRun records the shape of the most recent consolidation run.
func ObserveRun(pool, candidates, pending, incomplete int, durationSeconds int64) {
	poolSize.Store(int64(pool))
	matchCandidates.Store(int64(candidates))
	pendingReviews.Store(int64(pending))
	incompleteRecords.Store(int64(incomplete))
	runDurationSeconds.Store(durationSeconds)
	runsCompleted.Add(1)
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP carelink_intake_rows_accepted_total Source rows accepted across all origins since start.\n")
	fmt.Fprintf(w, "# TYPE carelink_intake_rows_accepted_total counter\n")
	fmt.Fprintf(w, "carelink_intake_rows_accepted_total %d\n", intakeAccepted.Load())

	fmt.Fprintf(w, "# HELP carelink_intake_rows_skipped_total Malformed source rows skipped since start.\n")
	fmt.Fprintf(w, "# TYPE carelink_intake_rows_skipped_total counter\n")
	fmt.Fprintf(w, "carelink_intake_rows_skipped_total %d\n", intakeSkipped.Load())

	fmt.Fprintf(w, "# HELP carelink_consolidation_pool_size Source records in the latest match pool.\n")
	fmt.Fprintf(w, "# TYPE carelink_consolidation_pool_size gauge\n")
	fmt.Fprintf(w, "carelink_consolidation_pool_size %d\n", poolSize.Load())

	fmt.Fprintf(w, "# HELP carelink_consolidation_candidates Match candidates found in the latest run.\n")
	fmt.Fprintf(w, "# TYPE carelink_consolidation_candidates gauge\n")
	fmt.Fprintf(w, "carelink_consolidation_candidates %d\n", matchCandidates.Load())

	fmt.Fprintf(w, "# HELP carelink_consolidation_pending_reviews New pairs routed to manual review in the latest run.\n")
	fmt.Fprintf(w, "# TYPE carelink_consolidation_pending_reviews gauge\n")
	fmt.Fprintf(w, "carelink_consolidation_pending_reviews %d\n", pendingReviews.Load())

	fmt.Fprintf(w, "# HELP carelink_consolidation_incomplete_records Canonical records flagged incomplete in the latest run.\n")
	fmt.Fprintf(w, "# TYPE carelink_consolidation_incomplete_records gauge\n")
	fmt.Fprintf(w, "carelink_consolidation_incomplete_records %d\n", incompleteRecords.Load())

	fmt.Fprintf(w, "# HELP carelink_consolidation_run_duration_seconds Wall time of the latest consolidation run.\n")
	fmt.Fprintf(w, "# TYPE carelink_consolidation_run_duration_seconds gauge\n")
	fmt.Fprintf(w, "carelink_consolidation_run_duration_seconds %d\n", runDurationSeconds.Load())

	fmt.Fprintf(w, "# HELP carelink_consolidation_runs_total Consolidation runs completed since start.\n")
	fmt.Fprintf(w, "# TYPE carelink_consolidation_runs_total counter\n")
	fmt.Fprintf(w, "carelink_consolidation_runs_total %d\n", runsCompleted.Load())
}

func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WritePrometheus(w)
	}
}
