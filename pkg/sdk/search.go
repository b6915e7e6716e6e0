package sdk

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TenantIdField is the document field holding tenant id.
const TenantIdField = "tenant_id"

// DefaultSearchSize is the count of hits returned when size is not given.
const DefaultSearchSize = 10

// Query is a search condition, rendered as OpenSearch query DSL.
type Query interface {
	Source() map[string]any

	// Matches evaluates the query on a document held in memory.
	Matches(doc map[string]any) bool
}

type MatchAllQuery struct{}

func (MatchAllQuery) Source() map[string]any {
	return map[string]any{"match_all": map[string]any{}}
}

func (MatchAllQuery) Matches(map[string]any) bool {
	return true
}

// TermQuery matches documents whose field equals to Value.
// When the field is an array, one of its elements should equal.
type TermQuery struct {
	Field string
	Value any
}

func (q TermQuery) Source() map[string]any {
	return map[string]any{"term": map[string]any{q.Field: q.Value}}
}

func (q TermQuery) Matches(doc map[string]any) bool {
	v, ok := Lookup(doc, q.Field)
	if !ok {
		return false
	}
	return containsValue(v, q.Value)
}

// TermsQuery matches documents whose field equals to one of Values.
type TermsQuery struct {
	Field  string
	Values []any
}

func (q TermsQuery) Source() map[string]any {
	return map[string]any{"terms": map[string]any{q.Field: q.Values}}
}

func (q TermsQuery) Matches(doc map[string]any) bool {
	v, ok := Lookup(doc, q.Field)
	if !ok {
		return false
	}
	for _, want := range q.Values {
		if containsValue(v, want) {
			return true
		}
	}
	return false
}

// IdsQuery matches documents by their ids.
type IdsQuery struct {
	Values []string
}

func (q IdsQuery) Source() map[string]any {
	return map[string]any{"ids": map[string]any{"values": q.Values}}
}

func (q IdsQuery) Matches(doc map[string]any) bool {
	id, _ := doc["_id"].(string)
	for _, v := range q.Values {
		if v == id {
			return true
		}
	}
	return false
}

// BoolQuery combines queries.
//
// A document matches when it matches all of Must and Filter, none of MustNot,
// and (only if Should is not empty) at least one of Should.
type BoolQuery struct {
	Must    []Query
	Filter  []Query
	Should  []Query
	MustNot []Query
}

func (q BoolQuery) Source() map[string]any {
	body := map[string]any{}
	put := func(key string, qs []Query) {
		if len(qs) == 0 {
			return
		}
		rendered := make([]any, 0, len(qs))
		for _, sub := range qs {
			rendered = append(rendered, sub.Source())
		}
		body[key] = rendered
	}
	put("must", q.Must)
	put("filter", q.Filter)
	put("should", q.Should)
	put("must_not", q.MustNot)
	return map[string]any{"bool": body}
}

func (q BoolQuery) Matches(doc map[string]any) bool {
	for _, sub := range q.Must {
		if !sub.Matches(doc) {
			return false
		}
	}
	for _, sub := range q.Filter {
		if !sub.Matches(doc) {
			return false
		}
	}
	for _, sub := range q.MustNot {
		if sub.Matches(doc) {
			return false
		}
	}
	if len(q.Should) == 0 {
		return true
	}
	for _, sub := range q.Should {
		if sub.Matches(doc) {
			return true
		}
	}
	return false
}

type SortField struct {
	Field      string
	Descending bool
}

// SearchSource is the payload of a search: a query with paging and sorting.
type SearchSource struct {
	Query Query
	From  int
	Size  int
	Sort  []SortField
}

// EffectiveSize is Size, or DefaultSearchSize when it is not positive.
func (s *SearchSource) EffectiveSize() int {
	if s == nil || s.Size <= 0 {
		return DefaultSearchSize
	}
	return s.Size
}

// EffectiveQuery is Query, or match-all when it is nil.
func (s *SearchSource) EffectiveQuery() Query {
	if s == nil || s.Query == nil {
		return MatchAllQuery{}
	}
	return s.Query
}

func (s *SearchSource) Source() map[string]any {
	body := map[string]any{"query": s.EffectiveQuery().Source()}
	if s == nil {
		return body
	}
	if s.From > 0 {
		body["from"] = s.From
	}
	if s.Size > 0 {
		body["size"] = s.Size
	}
	if len(s.Sort) > 0 {
		sorts := make([]any, 0, len(s.Sort))
		for _, f := range s.Sort {
			order := "asc"
			if f.Descending {
				order = "desc"
			}
			sorts = append(sorts, map[string]any{f.Field: map[string]any{"order": order}})
		}
		body["sort"] = sorts
	}
	return body
}

func (s *SearchSource) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Source())
}

// WithTenantFilter returns a copy of s whose query is restricted to the tenant.
func WithTenantFilter(s *SearchSource, tenantId string) *SearchSource {
	filtered := SearchSource{}
	if s != nil {
		filtered = *s
	}
	filtered.Query = BoolQuery{
		Must:   []Query{filtered.EffectiveQuery()},
		Filter: []Query{TermQuery{Field: TenantIdField, Value: tenantId}},
	}
	return &filtered
}

// Lookup finds a value in doc by a dotted path, like "a.b.c".
func Lookup(doc map[string]any, path string) (any, bool) {
	var current any = doc
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func containsValue(v any, want any) bool {
	if arr, ok := v.([]any); ok {
		for _, item := range arr {
			if sameValue(item, want) {
				return true
			}
		}
		return false
	}
	return sameValue(v, want)
}

// sameValue compares scalars as JSON does; numbers compare by value.
func sameValue(a, b any) bool {
	return fmt.Sprint(normalize(a)) == fmt.Sprint(normalize(b))
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return v
}
