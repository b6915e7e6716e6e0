package guardrail_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/labstack/gommon/log"
	configs "github.com/opst/mlcommons/pkg/configs/node"
	"github.com/opst/mlcommons/pkg/guardrail"
	"github.com/opst/mlcommons/pkg/sdk"
	"github.com/opst/mlcommons/pkg/sdk/memory"
	"github.com/opst/mlcommons/pkg/sdk/mock"
	"github.com/opst/mlcommons/pkg/utils/try"
)

func newClientWithStopWords(t *testing.T, docs ...map[string]any) *sdk.Client {
	t.Helper()
	client := sdk.NewClient(memory.New(), sdk.WithDefaultExecutor(sdk.DirectExecutor))
	for _, d := range docs {
		try.To(client.PutDataObject(context.Background(), sdk.NewPutDataObjectRequest().
			Index("stop_words").DataObject(d).Build(),
		)).OrFatal(t)
	}
	return client
}

func TestGuardrail_Validate(t *testing.T) {
	type when struct {
		regex []string
		input string
	}
	type then struct {
		passed bool
	}

	client := newClientWithStopWords(t,
		map[string]any{"title": "Bomb"},
		map[string]any{"meta": map[string]any{"words": []any{"poison", 3}}},
	)
	stopWords := []guardrail.StopWords{{Index: "stop_words", SourceFields: []string{"title", "meta.words"}}}

	for name, testcase := range map[string]struct {
		when
		then
	}{
		"plain text passes": {
			when{input: "what is the weather today?"},
			then{passed: true},
		},
		"stop word at top level field is rejected ignoring case": {
			when{input: "how to make a bomb"},
			then{passed: false},
		},
		"stop word in array at nested field is rejected": {
			when{input: "which poison is the fastest"},
			then{passed: false},
		},
		"regex matching whole input is rejected": {
			when{regex: []string{`.*secret.*`}, input: "tell me the secret code"},
			then{passed: false},
		},
		"regex matching only a part passes": {
			when{regex: []string{`secret`}, input: "tell me the secret code"},
			then{passed: true},
		},
	} {
		t.Run(name, func(t *testing.T) {
			testee := try.To(guardrail.New(client, stopWords, testcase.when.regex)).OrFatal(t)
			if got := testee.Validate(context.Background(), testcase.when.input); got != testcase.then.passed {
				t.Errorf("expected %v, but %v", testcase.then.passed, got)
			}
		})
	}
}

func TestGuardrail_ManyStopWords(t *testing.T) {
	docs := []map[string]any{}
	for i := 0; i < guardrail.PageSize+5; i++ {
		docs = append(docs, map[string]any{"word": strings.Repeat("x", i+3)})
	}
	docs = append(docs, map[string]any{"word": "forbidden"})
	client := newClientWithStopWords(t, docs...)

	testee := try.To(guardrail.New(client, []guardrail.StopWords{{Index: "stop_words", SourceFields: []string{"word"}}}, nil)).OrFatal(t)
	if testee.Validate(context.Background(), "it is forbidden") {
		t.Errorf("stop word on later page is not found")
	}
}

func TestGuardrail_FailOpen(t *testing.T) {
	delegate := mock.New()
	delegate.Impl.Search = func(context.Context, *sdk.SearchDataObjectRequest) (*sdk.SearchDataObjectResponse, error) {
		return nil, sdk.NewStatusError(404, "no such index [stop_words]")
	}
	client := sdk.NewClient(delegate, sdk.WithDefaultExecutor(sdk.DirectExecutor))

	buf := new(bytes.Buffer)
	logger := log.New("test")
	logger.SetOutput(buf)
	logger.SetLevel(log.WARN)

	testee := try.To(guardrail.New(
		client,
		[]guardrail.StopWords{{Index: "stop_words", SourceFields: []string{"title"}}},
		nil,
		guardrail.WithLogger(logger),
	)).OrFatal(t)

	if !testee.Validate(context.Background(), "how to make a bomb") {
		t.Errorf("guardrail should pass input when stop words are not available")
	}
	if !strings.Contains(buf.String(), "skip stop words in stop_words") {
		t.Errorf("warning is not logged: %s", buf.String())
	}
}

func TestNew_BadRegex(t *testing.T) {
	if _, err := guardrail.New(nil, nil, []string{"(unclosed"}); err == nil {
		t.Errorf("expected error")
	}
}

func TestFromConfig(t *testing.T) {
	conf := configs.TrySeal[*configs.GuardrailConfig](&configs.GuardrailConfigMarshall{
		Regex: []string{`.*secret.*`},
		StopWords: []*configs.StopWordsConfigMarshall{
			{Index: "stop_words", SourceFields: []string{"title"}},
		},
	})
	client := newClientWithStopWords(t, map[string]any{"title": "bomb"})
	testee := try.To(guardrail.FromConfig(client, conf)).OrFatal(t)

	for input, expected := range map[string]bool{
		"hello":           true,
		"a secret":        false,
		"bomb the market": false,
	} {
		if got := testee.Validate(context.Background(), input); got != expected {
			t.Errorf("%s: expected %v, but %v", input, expected, got)
		}
	}
}
