package match

import (
	"sort"
	"sync"
	"time"

	"github.com/carelink-health/platform/pkg/common/models"
	"github.com/carelink-health/platform/pkg/normalize"
	"github.com/carelink-health/platform/pkg/policy"
)

// Matching tiers, in decreasing reliability. The first qualifying tier wins
// for a pair; lower tiers are never evaluated after a hit.
const (
	TierExactPhone = 1
	TierNameDOB    = 2
	TierFuzzy      = 3
)

// Tier 3 scores span this band, linear in name similarity above the floor.
const (
	fuzzyScoreMin = 0.5
	fuzzyScoreMax = 0.85
)

type Matcher struct {
	policy    *policy.Policy
	nicknames policy.NicknameIndex
	workers   int
}

func NewMatcher(p *policy.Policy, workers int) *Matcher {
	if p == nil {
		p = policy.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Matcher{policy: p, nicknames: p.NicknameIndex(), workers: workers}
}

// identity is the precomputed comparison view of one source record. Derived
// fresh each run, never persisted as identity.
type identity struct {
	key        string
	phones     map[string]struct{}
	lastTen    map[string]struct{}
	name       normalize.NameTokens
	fullName   string
	dob        string
	ingestedAt time.Time
}

func (m *Matcher) buildIdentity(rec models.SourceRecord) identity {
	id := identity{
		key:        rec.Key(),
		phones:     make(map[string]struct{}),
		lastTen:    make(map[string]struct{}),
		name:       normalize.Name(rec.FullName),
		dob:        normalize.DOB(rec.DOB),
		ingestedAt: rec.IngestedAt,
	}
	id.fullName = id.name.Full()

	for _, raw := range rec.Phones {
		canonical, err := normalize.Phone(raw, m.policy.DefaultCountryCode)
		if err != nil {
			// Invalid phone: the field is absent for matching, the record stays.
			continue
		}
		id.phones[canonical] = struct{}{}
		digits := canonical[1:]
		if len(digits) >= 10 {
			id.lastTen[digits[len(digits)-10:]] = struct{}{}
		}
	}
	return id
}

// FindCandidates evaluates every unordered pair in the pool against the tier
// ladder and returns scored candidates, tie-broken deterministically.
// Pairs on the exclusion list (a reviewer already said no) are never emitted.
func (m *Matcher) FindCandidates(pool []models.SourceRecord, excluded map[string]struct{}) []models.MatchCandidate {
	identities := make([]identity, len(pool))
	for i, rec := range pool {
		identities[i] = m.buildIdentity(rec)
	}

	// Pairwise comparison is embarrassingly parallel: shard the outer index
	// across workers, then reduce deterministically below.
	shards := make([][]models.MatchCandidate, m.workers)
	var wg sync.WaitGroup
	for w := 0; w < m.workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			var out []models.MatchCandidate
			for i := w; i < len(identities); i += m.workers {
				for j := i + 1; j < len(identities); j++ {
					cand, ok := m.evaluatePair(&identities[i], &identities[j])
					if !ok {
						continue
					}
					if _, skip := excluded[cand.PairKey()]; skip {
						continue
					}
					out = append(out, cand)
				}
			}
			shards[w] = out
		}(w)
	}
	wg.Wait()

	var candidates []models.MatchCandidate
	for _, shard := range shards {
		candidates = append(candidates, shard...)
	}

	// Deterministic order before tie-breaking, so sharding never changes
	// winners.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].PairKey() < candidates[j].PairKey()
	})

	return m.reduceTies(candidates, identities)
}

// evaluatePair walks the tier ladder. Symmetric: the result is independent of
// argument order apart from the normalized key ordering of the pair.
func (m *Matcher) evaluatePair(a, b *identity) (models.MatchCandidate, bool) {
	first, second := a.key, b.key
	if second < first {
		first, second = second, first
	}

	// Tier 1: identical canonical phone.
	for phone := range a.phones {
		if _, ok := b.phones[phone]; ok {
			return models.MatchCandidate{RecordA: first, RecordB: second, Tier: TierExactPhone, Score: 1.0}, true
		}
	}

	// Tier 2: family + given (or nickname class) + DOB.
	if m.nameDOBMatch(a, b) {
		return models.MatchCandidate{RecordA: first, RecordB: second, Tier: TierNameDOB, Score: 0.85}, true
	}

	// Tier 3: weak phone overlap plus fuzzy name. Continuous score so the
	// caller gets a gradient to route into auto-accept vs. review.
	if overlapLastTen(a, b) {
		sim := jaroWinkler(a.fullName, b.fullName)
		if sim > m.policy.NameSimilarityFloor {
			span := 1 - m.policy.NameSimilarityFloor
			score := fuzzyScoreMin + (sim-m.policy.NameSimilarityFloor)/span*(fuzzyScoreMax-fuzzyScoreMin)
			return models.MatchCandidate{RecordA: first, RecordB: second, Tier: TierFuzzy, Score: score}, true
		}
	}

	return models.MatchCandidate{}, false
}

func (m *Matcher) nameDOBMatch(a, b *identity) bool {
	if a.dob == "" || a.dob != b.dob {
		return false
	}
	if a.name.Family == "" || a.name.Family != b.name.Family {
		return false
	}
	if len(a.name.Given) == 0 || len(b.name.Given) == 0 {
		return false
	}
	return m.nicknames.Same(a.name.Given[0], b.name.Given[0])
}

func overlapLastTen(a, b *identity) bool {
	for digits := range a.lastTen {
		if _, ok := b.lastTen[digits]; ok {
			return true
		}
	}
	return false
}

// Route maps a candidate score into a decision state using the configured
// confidence bands.
func (m *Matcher) Route(score float64) models.DecisionState {
	switch {
	case score >= m.policy.AutoAcceptThreshold:
		return models.DecisionAutoAccepted
	case score >= m.policy.ReviewThreshold:
		return models.DecisionPendingReview
	default:
		return models.DecisionRejectedAuto
	}
}

// reduceTies keeps, per record and tier, only that record's preferred pairing:
// higher score first, then the counterpart seen earliest, then pair key. Runs
// after all shards report so sharding cannot produce non-deterministic
// winners.
func (m *Matcher) reduceTies(candidates []models.MatchCandidate, identities []identity) []models.MatchCandidate {
	seen := make(map[string]time.Time, len(identities))
	for _, id := range identities {
		seen[id.key] = id.ingestedAt
	}

	preferred := make(map[string]models.MatchCandidate)

	better := func(next, current models.MatchCandidate, owner string) bool {
		if next.Score != current.Score {
			return next.Score > current.Score
		}
		nextOther := counterpart(next, owner)
		currentOther := counterpart(current, owner)
		if !seen[nextOther].Equal(seen[currentOther]) {
			return seen[nextOther].Before(seen[currentOther])
		}
		return next.PairKey() < current.PairKey()
	}

	slotKey := func(record string, tier int) string {
		return record + "#" + string(rune('0'+tier))
	}

	for _, cand := range candidates {
		for _, owner := range []string{cand.RecordA, cand.RecordB} {
			key := slotKey(owner, cand.Tier)
			current, ok := preferred[key]
			if !ok || better(cand, current, owner) {
				preferred[key] = cand
			}
		}
	}

	// A pairing survives only when both of its records prefer it; dominated
	// pairings lose to the winner and are not emitted.
	kept := make([]models.MatchCandidate, 0, len(candidates))
	for _, cand := range candidates {
		keyA := slotKey(cand.RecordA, cand.Tier)
		keyB := slotKey(cand.RecordB, cand.Tier)
		if preferred[keyA].PairKey() == cand.PairKey() && preferred[keyB].PairKey() == cand.PairKey() {
			kept = append(kept, cand)
		}
	}
	return kept
}

func counterpart(c models.MatchCandidate, owner string) string {
	if c.RecordA == owner {
		return c.RecordB
	}
	return c.RecordA
}
