// Package guardrail tells whether a text may reach (or leave) a model.
package guardrail

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	configs "github.com/opst/mlcommons/pkg/configs/node"
	xe "github.com/opst/mlcommons/pkg/errors"
	"github.com/opst/mlcommons/pkg/sdk"
)

// PageSize is the number of stop words read at once.
const PageSize = 100

// StopWords are words in documents of Index, at SourceFields (dotted paths).
type StopWords struct {
	Index        string
	SourceFields []string
}

type Guardrail struct {
	client    *sdk.Client
	stopWords []StopWords
	regex     []*regexp.Regexp
	tenantId  string
	logger    echo.Logger
}

type Option func(*Guardrail) *Guardrail

func WithLogger(logger echo.Logger) Option {
	return func(g *Guardrail) *Guardrail {
		g.logger = logger
		return g
	}
}

// WithTenantId makes stop words searched as documents of the tenant.
func WithTenantId(tenantId string) Option {
	return func(g *Guardrail) *Guardrail {
		g.tenantId = tenantId
		return g
	}
}

// New creates a Guardrail.
//
// Each of regex must match the whole input to reject it.
func New(client *sdk.Client, stopWords []StopWords, regex []string, options ...Option) (*Guardrail, error) {
	g := &Guardrail{client: client, stopWords: stopWords, logger: log.New("guardrail")}
	for _, r := range regex {
		re, err := regexp.Compile(`^(?:` + r + `)$`)
		if err != nil {
			return nil, xe.WrapWithNote(fmt.Sprintf("guardrail regex %q", r), err)
		}
		g.regex = append(g.regex, re)
	}
	for _, opt := range options {
		g = opt(g)
	}
	return g, nil
}

// FromConfig creates a Guardrail from the node config.
func FromConfig(client *sdk.Client, conf *configs.GuardrailConfig, options ...Option) (*Guardrail, error) {
	stopWords := []StopWords{}
	for _, sw := range conf.StopWords() {
		stopWords = append(stopWords, StopWords{Index: sw.Index(), SourceFields: sw.SourceFields()})
	}
	return New(client, stopWords, conf.Regex(), options...)
}

// Validate tells input passes the guardrail.
//
// input is rejected when some regex matches it entirely, or it contains some stop word.
//
// When stop words cannot be searched, the index is skipped and input is treated as passing it.
func (g *Guardrail) Validate(ctx context.Context, input string) bool {
	for _, re := range g.regex {
		if re.MatchString(input) {
			return false
		}
	}
	lowered := strings.ToLower(input)
	for _, sw := range g.stopWords {
		found, err := g.containsStopWord(ctx, sw, lowered)
		if err != nil {
			g.logger.Warnf("guardrail: skip stop words in %s: %s", sw.Index, err)
			continue
		}
		if found {
			return false
		}
	}
	return true
}

func (g *Guardrail) containsStopWord(ctx context.Context, sw StopWords, lowered string) (bool, error) {
	for from := 0; ; from += PageSize {
		req := sdk.NewSearchDataObjectRequest().
			Indices(sw.Index).
			TenantId(g.tenantId).
			SearchSource(&sdk.SearchSource{From: from, Size: PageSize}).
			Build()
		resp, err := g.client.SearchDataObject(ctx, req)
		if err != nil {
			return false, err
		}
		hits, err := resp.Hits()
		if err != nil {
			return false, err
		}
		for _, h := range hits.Hits {
			source := map[string]any{}
			if err := json.Unmarshal(h.Source, &source); err != nil {
				return false, xe.Wrap(err)
			}
			for _, field := range sw.SourceFields {
				if containsWord(lowered, source, field) {
					return true, nil
				}
			}
		}
		if len(hits.Hits) < PageSize {
			return false, nil
		}
	}
}

func containsWord(lowered string, source map[string]any, field string) bool {
	v, ok := sdk.Lookup(source, field)
	if !ok {
		return false
	}
	words := []any{v}
	if arr, ok := v.([]any); ok {
		words = arr
	}
	for _, w := range words {
		s, ok := w.(string)
		if !ok || s == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(s)) {
			return true
		}
	}
	return false
}
