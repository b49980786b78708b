package match

import (
	"testing"
	"time"

	"github.com/carelink-health/platform/pkg/common/models"
	"github.com/carelink-health/platform/pkg/policy"
)

func newTestMatcher(workers int) *Matcher {
	return NewMatcher(policy.Default(), workers)
}

func rec(origin models.Origin, id, name string, phones []string, dob string, ingested time.Time) models.SourceRecord {
	return models.SourceRecord{
		Origin:         origin,
		OriginRecordID: id,
		FullName:       name,
		Phones:         phones,
		DOB:            dob,
		IngestedAt:     ingested,
	}
}

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func TestExactPhoneTier(t *testing.T) {
	pool := []models.SourceRecord{
		rec(models.OriginRoster, "R1", "Robert Green", []string{"205-555-0100"}, "", t0),
		rec(models.OriginDirectory, "D1", "Bob Green", []string{"+12055550100"}, "", t0.Add(time.Hour)),
	}

	cands := newTestMatcher(1).FindCandidates(pool, nil)
	if len(cands) != 1 {
		t.Fatalf("candidates = %v", cands)
	}
	c := cands[0]
	if c.Tier != TierExactPhone || c.Score != 1.0 {
		t.Fatalf("tier=%d score=%v, want tier 1 score 1.0", c.Tier, c.Score)
	}
	if newTestMatcher(1).Route(c.Score) != models.DecisionAutoAccepted {
		t.Fatal("exact phone match should auto-accept")
	}
}

func TestNameDOBTierWithNickname(t *testing.T) {
	pool := []models.SourceRecord{
		rec(models.OriginRoster, "R1", "Robert Green", nil, "1955-03-02", t0),
		rec(models.OriginDirectory, "D1", "Bob Green", nil, "1955-03-02", t0),
	}

	cands := newTestMatcher(1).FindCandidates(pool, nil)
	if len(cands) != 1 {
		t.Fatalf("candidates = %v", cands)
	}
	if cands[0].Tier != TierNameDOB || cands[0].Score != 0.85 {
		t.Fatalf("tier=%d score=%v, want tier 2 score 0.85", cands[0].Tier, cands[0].Score)
	}
	if newTestMatcher(1).Route(cands[0].Score) != models.DecisionPendingReview {
		t.Fatal("0.85 should route to review under default bands")
	}
}

func TestFamilyVariantFallsOut(t *testing.T) {
	// Smith vs Smyth: family tokens differ, no phones, so no tier applies.
	pool := []models.SourceRecord{
		rec(models.OriginRoster, "R1", "Jane Smith", nil, "1955-03-02", t0),
		rec(models.OriginEnrollment, "E1", "Jane Smyth", nil, "1955-03-02", t0),
	}
	if cands := newTestMatcher(1).FindCandidates(pool, nil); len(cands) != 0 {
		t.Fatalf("expected no candidates, got %v", cands)
	}
}

func TestFuzzyTierContinuousScore(t *testing.T) {
	// Same last ten digits, different country-code prefix, similar names.
	pool := []models.SourceRecord{
		rec(models.OriginRoster, "R1", "Robert Green", []string{"+442055550100"}, "", t0),
		rec(models.OriginDirectory, "D1", "Robbie Greene", []string{"205-555-0100"}, "", t0),
	}

	cands := newTestMatcher(1).FindCandidates(pool, nil)
	if len(cands) != 1 {
		t.Fatalf("candidates = %v", cands)
	}
	c := cands[0]
	if c.Tier != TierFuzzy {
		t.Fatalf("tier = %d, want 3", c.Tier)
	}
	if c.Score < fuzzyScoreMin || c.Score > fuzzyScoreMax {
		t.Fatalf("score %v outside [%v,%v]", c.Score, fuzzyScoreMin, fuzzyScoreMax)
	}
}

func TestTierShortCircuit(t *testing.T) {
	// Identical canonical phones AND fuzzy-similar names: tier 1 wins, the
	// continuous tier 3 function is never applied.
	pool := []models.SourceRecord{
		rec(models.OriginRoster, "R1", "Robert Green", []string{"2055550100"}, "", t0),
		rec(models.OriginDirectory, "D1", "Robbie Greene", []string{"+12055550100"}, "", t0),
	}
	cands := newTestMatcher(1).FindCandidates(pool, nil)
	if len(cands) != 1 || cands[0].Tier != TierExactPhone || cands[0].Score != 1.0 {
		t.Fatalf("candidates = %v, want single tier-1 at 1.0", cands)
	}
}

func TestInvalidPhoneStillMatchesByName(t *testing.T) {
	pool := []models.SourceRecord{
		rec(models.OriginRoster, "R1", "Robert Green", []string{"555-01"}, "1955-03-02", t0),
		rec(models.OriginDirectory, "D1", "Bob Green", nil, "1955-03-02", t0),
	}
	cands := newTestMatcher(1).FindCandidates(pool, nil)
	if len(cands) != 1 || cands[0].Tier != TierNameDOB {
		t.Fatalf("candidates = %v, want tier-2 despite bad phone", cands)
	}
}

func TestSymmetry(t *testing.T) {
	a := rec(models.OriginRoster, "R1", "Robert Green", []string{"205-555-0100"}, "", t0)
	b := rec(models.OriginDirectory, "D1", "Bob Green", []string{"+12055550100"}, "", t0)

	forward := newTestMatcher(1).FindCandidates([]models.SourceRecord{a, b}, nil)
	reverse := newTestMatcher(1).FindCandidates([]models.SourceRecord{b, a}, nil)

	if len(forward) != 1 || len(reverse) != 1 {
		t.Fatalf("forward=%v reverse=%v", forward, reverse)
	}
	if forward[0] != reverse[0] {
		t.Fatalf("pair order changed the result: %v vs %v", forward[0], reverse[0])
	}
}

func TestExclusionListSuppressesPair(t *testing.T) {
	a := rec(models.OriginRoster, "R1", "Robert Green", []string{"205-555-0100"}, "", t0)
	b := rec(models.OriginDirectory, "D1", "Bob Green", []string{"+12055550100"}, "", t0)

	excluded := map[string]struct{}{
		models.PairKey(a.Key(), b.Key()): {},
	}
	if cands := newTestMatcher(1).FindCandidates([]models.SourceRecord{a, b}, excluded); len(cands) != 0 {
		t.Fatalf("declined pair re-proposed: %v", cands)
	}
}

func TestTieBreakPrefersEarliestCounterpart(t *testing.T) {
	// X ties with Y and Z at the same tier-3 score; Y was ingested first, so
	// (X,Y) wins and (X,Z) is not emitted.
	x := rec(models.OriginRoster, "X", "Robert Green", []string{"+442055550100"}, "", t0)
	y := rec(models.OriginDirectory, "Y", "Robert Greene", []string{"205-555-0100"}, "", t0.Add(time.Hour))
	z := rec(models.OriginEnrollment, "Z", "Robert Greene", []string{"2055550100"}, "", t0.Add(2*time.Hour))

	for _, pool := range [][]models.SourceRecord{{x, y, z}, {z, y, x}, {y, x, z}} {
		cands := newTestMatcher(1).FindCandidates(pool, nil)
		var xPairs []models.MatchCandidate
		for _, c := range cands {
			if c.RecordA == x.Key() || c.RecordB == x.Key() {
				xPairs = append(xPairs, c)
			}
		}
		if len(xPairs) != 1 {
			t.Fatalf("x pairs = %v, want exactly one", xPairs)
		}
		want := models.PairKey(x.Key(), y.Key())
		if xPairs[0].PairKey() != want {
			t.Fatalf("winner = %s, want %s", xPairs[0].PairKey(), want)
		}
	}
}

func TestShardingIsDeterministic(t *testing.T) {
	pool := []models.SourceRecord{
		rec(models.OriginRoster, "R1", "Robert Green", []string{"205-555-0100"}, "1955-03-02", t0),
		rec(models.OriginDirectory, "D1", "Bob Green", []string{"+12055550100"}, "1955-03-02", t0.Add(time.Minute)),
		rec(models.OriginEnrollment, "E1", "Robert Green", nil, "1955-03-02", t0.Add(2*time.Minute)),
		rec(models.OriginRoster, "R2", "Jane Smith", []string{"205-555-0177"}, "1960-01-01", t0),
		rec(models.OriginDirectory, "D2", "Jane Smith", []string{"2055550177"}, "", t0.Add(time.Minute)),
	}

	base := newTestMatcher(1).FindCandidates(pool, nil)
	for _, workers := range []int{2, 3, 8} {
		got := newTestMatcher(workers).FindCandidates(pool, nil)
		if len(got) != len(base) {
			t.Fatalf("workers=%d candidates=%v, want %v", workers, got, base)
		}
		for i := range base {
			if got[i] != base[i] {
				t.Fatalf("workers=%d candidate %d = %v, want %v", workers, i, got[i], base[i])
			}
		}
	}
}

func TestRouteBands(t *testing.T) {
	m := newTestMatcher(1)
	cases := []struct {
		score float64
		want  models.DecisionState
	}{
		{1.0, models.DecisionAutoAccepted},
		{0.90, models.DecisionAutoAccepted},
		{0.89, models.DecisionPendingReview},
		{0.75, models.DecisionPendingReview},
		{0.74, models.DecisionRejectedAuto},
		{0.5, models.DecisionRejectedAuto},
	}
	for _, tc := range cases {
		if got := m.Route(tc.score); got != tc.want {
			t.Errorf("Route(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
