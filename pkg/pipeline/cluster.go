package pipeline

import (
	"sort"

	"github.com/carelink-health/platform/pkg/common/models"
)

// unionFind groups source record keys connected by accepted match decisions.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind(keys []string) *unionFind {
	uf := &unionFind{
		parent: make(map[string]string, len(keys)),
		rank:   make(map[string]int, len(keys)),
	}
	for _, k := range keys {
		uf.parent[k] = k
	}
	return uf
}

func (uf *unionFind) find(k string) string {
	root := k
	for uf.parent[root] != root {
		root = uf.parent[root]
	}
	for uf.parent[k] != root {
		uf.parent[k], k = root, uf.parent[k]
	}
	return root
}

func (uf *unionFind) union(a, b string) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}

// buildClusters partitions the pool by the accepted pairs. Records with no
// accepted link form singleton clusters: every pool record belongs to exactly
// one cluster. An accepted pair whose endpoint has since left the pool (the
// row was retracted) contributes nothing.
func buildClusters(pool []models.SourceRecord, accepted []models.MatchDecision) [][]models.SourceRecord {
	byKey := make(map[string]models.SourceRecord, len(pool))
	keys := make([]string, 0, len(pool))
	for _, rec := range pool {
		byKey[rec.Key()] = rec
		keys = append(keys, rec.Key())
	}

	uf := newUnionFind(keys)
	for _, dec := range accepted {
		if _, okA := byKey[dec.RecordA]; !okA {
			continue
		}
		if _, okB := byKey[dec.RecordB]; !okB {
			continue
		}
		uf.union(dec.RecordA, dec.RecordB)
	}

	groups := make(map[string][]models.SourceRecord)
	for _, k := range keys {
		root := uf.find(k)
		groups[root] = append(groups[root], byKey[k])
	}

	roots := make([]string, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	clusters := make([][]models.SourceRecord, 0, len(groups))
	for _, root := range roots {
		members := groups[root]
		sort.Slice(members, func(i, j int) bool { return members[i].Key() < members[j].Key() })
		clusters = append(clusters, members)
	}
	return clusters
}
