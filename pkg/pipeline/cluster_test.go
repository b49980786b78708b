package pipeline

import (
	"testing"

	"github.com/carelink-health/platform/pkg/common/models"
)

func rec(origin models.Origin, id string) models.SourceRecord {
	return models.SourceRecord{Origin: origin, OriginRecordID: id}
}

func dec(a, b string) models.MatchDecision {
	return models.MatchDecision{RecordA: a, RecordB: b, State: models.DecisionAutoAccepted}
}

func TestBuildClustersTransitive(t *testing.T) {
	pool := []models.SourceRecord{
		rec(models.OriginRoster, "A"),
		rec(models.OriginDirectory, "B"),
		rec(models.OriginEnrollment, "C"),
		rec(models.OriginRoster, "D"),
	}
	// A-B and B-C link; D is alone.
	accepted := []models.MatchDecision{
		dec("roster:A", "directory:B"),
		dec("directory:B", "enrollment:C"),
	}

	clusters := buildClusters(pool, accepted)
	if len(clusters) != 2 {
		t.Fatalf("clusters = %d", len(clusters))
	}

	sizes := map[int]int{}
	for _, c := range clusters {
		sizes[len(c)]++
	}
	if sizes[3] != 1 || sizes[1] != 1 {
		t.Fatalf("cluster sizes = %v", sizes)
	}
}

func TestBuildClustersEveryRecordBelongsSomewhere(t *testing.T) {
	pool := []models.SourceRecord{
		rec(models.OriginRoster, "A"),
		rec(models.OriginRoster, "B"),
	}
	clusters := buildClusters(pool, nil)
	if len(clusters) != 2 {
		t.Fatalf("unlinked records must form singletons, got %d clusters", len(clusters))
	}
}

func TestBuildClustersIgnoresStaleDecisions(t *testing.T) {
	pool := []models.SourceRecord{rec(models.OriginRoster, "A")}
	// The counterpart retracted since the decision was made.
	accepted := []models.MatchDecision{dec("roster:A", "directory:GONE")}

	clusters := buildClusters(pool, accepted)
	if len(clusters) != 1 || len(clusters[0]) != 1 {
		t.Fatalf("stale decision changed clustering: %v", clusters)
	}
}

func TestBuildClustersDeterministicOrder(t *testing.T) {
	pool := []models.SourceRecord{
		rec(models.OriginRoster, "B"),
		rec(models.OriginRoster, "A"),
		rec(models.OriginDirectory, "Z"),
	}
	first := buildClusters(pool, nil)
	second := buildClusters([]models.SourceRecord{pool[2], pool[0], pool[1]}, nil)

	if len(first) != len(second) {
		t.Fatalf("cluster counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i][0].Key() != second[i][0].Key() {
			t.Fatalf("order differs at %d: %s vs %s", i, first[i][0].Key(), second[i][0].Key())
		}
	}
}
