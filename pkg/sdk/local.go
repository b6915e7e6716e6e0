package sdk

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// LocalDocument is a document evaluated by EvaluateSearch.
type LocalDocument struct {
	Index  string
	Id     string
	Source map[string]any
}

// EvaluateSearch runs source over docs held in the process.
//
// It is for stores which cannot run query DSL by themselves.
// Documents are matched, sorted by source.Sort (then by index and id), and paged.
func EvaluateSearch(docs []LocalDocument, source *SearchSource) (*SearchResult, error) {
	started := time.Now()
	query := source.EffectiveQuery()

	hits := make([]LocalDocument, 0, len(docs))
	for _, doc := range docs {
		candidate := CopySource(doc.Source)
		if candidate == nil {
			candidate = map[string]any{}
		}
		candidate["_id"] = doc.Id
		if query.Matches(candidate) {
			hits = append(hits, doc)
		}
	}

	var fields []SortField
	if source != nil {
		fields = source.Sort
	}
	sort.SliceStable(hits, func(i, j int) bool {
		for _, f := range fields {
			a, _ := Lookup(hits[i].Source, f.Field)
			b, _ := Lookup(hits[j].Source, f.Field)
			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			if f.Descending {
				return c > 0
			}
			return c < 0
		}
		if hits[i].Index != hits[j].Index {
			return hits[i].Index < hits[j].Index
		}
		return hits[i].Id < hits[j].Id
	})

	total := len(hits)
	from := 0
	if source != nil && source.From > 0 {
		from = min(source.From, total)
	}
	to := min(from+source.EffectiveSize(), total)
	hits = hits[from:to]

	result := &SearchResult{
		Hits: SearchHits{
			Total: TotalHits{Value: int64(total), Relation: "eq"},
			Hits:  make([]SearchHit, 0, len(hits)),
		},
	}
	for _, h := range hits {
		raw, err := json.Marshal(h.Source)
		if err != nil {
			return nil, err
		}
		score := 1.0
		result.Hits.Hits = append(result.Hits.Hits, SearchHit{Index: h.Index, Id: h.Id, Score: &score, Source: raw})
	}
	result.Took = time.Since(started).Milliseconds()
	return result, nil
}

// compareValues orders numbers by value and others by their text. Missing values go last.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	fa, aIsNum := normalize(a).(float64)
	fb, bIsNum := normalize(b).(float64)
	if aIsNum && bIsNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}
