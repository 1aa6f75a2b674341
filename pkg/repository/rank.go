package repository

import (
	"sort"
	"strings"

	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/model"
)

// Relevance scores used by the score ranking policy.
const (
	scoreExact       = 100
	scorePrefix      = 50
	scoreContains    = 25
	scoreDescription = 10
)

// merge combines the per-repository outcomes: version filters first, then one
// record per (repository, package) keeping the highest version, then ranking
// and the limit.
func merge(outcomes []outcome, req Request, constraint *model.Constraint, policy string, priorities map[string]int) *AggregatedResult {
	result := &AggregatedResult{}

	var all []model.PackageRecord
	for _, o := range outcomes {
		if o.skipped {
			continue
		}
		if o.err != nil {
			result.Errors = append(result.Errors, o.err)
		}
		if o.source.Repository != "" && (o.err == nil || o.err.Stale) {
			result.Sources = append(result.Sources, o.source)
		}
		all = append(all, o.records...)
	}

	if req.Version != "" {
		exact := all[:0:0]
		for _, r := range all {
			if r.Version == req.Version {
				exact = append(exact, r)
			}
		}
		all = exact
	}
	all = constraint.Filter(all)

	records := dedupe(all)
	rank(records, req.textForRanking(), policy, priorities)
	if req.Limit > 0 && len(records) > req.Limit {
		records = records[:req.Limit]
	}
	result.Records = records
	return result
}

func (r Request) textForRanking() string {
	if r.Text != "" {
		return r.Text
	}
	return r.Package
}

// dedupe keeps one record per (repository, package): the one with the highest
// version, the first seen on ties.
func dedupe(records []model.PackageRecord) []model.PackageRecord {
	index := make(map[string]int, len(records))
	out := make([]model.PackageRecord, 0, len(records))
	for _, r := range records {
		k := r.Key()
		if i, ok := index[k]; ok {
			if model.CompareVersions(r.Version, out[i].Version) > 0 {
				out[i] = r
			}
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

// rank orders records in place according to policy.
func rank(records []model.PackageRecord, text, policy string, priorities map[string]int) {
	byName := func(a, b model.PackageRecord) bool {
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.RepositoryName < b.RepositoryName
	}
	byPriority := func(a, b model.PackageRecord) (less, decided bool) {
		pa, pb := priorities[a.RepositoryName], priorities[b.RepositoryName]
		if pa != pb {
			return pa > pb, true
		}
		return false, false
	}

	var less func(a, b model.PackageRecord) bool
	switch policy {
	case config.RankingAlphabetical:
		less = byName
	case config.RankingPriority:
		less = func(a, b model.PackageRecord) bool {
			if l, ok := byPriority(a, b); ok {
				return l
			}
			return byName(a, b)
		}
	default:
		text = strings.ToLower(text)
		scores := make(map[string]int, len(records))
		for _, r := range records {
			scores[r.Key()] = relevance(r, text)
		}
		less = func(a, b model.PackageRecord) bool {
			if sa, sb := scores[a.Key()], scores[b.Key()]; sa != sb {
				return sa > sb
			}
			if l, ok := byPriority(a, b); ok {
				return l
			}
			return byName(a, b)
		}
	}

	sort.SliceStable(records, func(i, j int) bool { return less(records[i], records[j]) })
}

// relevance scores how well r matches the lowercased text.
func relevance(r model.PackageRecord, text string) int {
	if text == "" {
		return 0
	}
	name := strings.ToLower(r.Name)
	switch {
	case name == text:
		return scoreExact
	case strings.HasPrefix(name, text):
		return scorePrefix
	case strings.Contains(name, text):
		return scoreContains
	case strings.Contains(strings.ToLower(r.Description), text):
		return scoreDescription
	}
	return 0
}
