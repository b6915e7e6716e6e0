package sdk

import (
	"encoding/json"
	"errors"
)

// Results of document writes.
const (
	ResultCreated  = "created"
	ResultUpdated  = "updated"
	ResultDeleted  = "deleted"
	ResultNotFound = "not_found"
	ResultNoop     = "noop"
)

// Parser is a deferred parse handle on a raw response of a store.
//
// Responses keep the raw document so that a caller decodes it into what it needs.
type Parser struct {
	raw json.RawMessage
}

func NewParser(raw []byte) *Parser {
	return &Parser{raw: append(json.RawMessage{}, raw...)}
}

// ParserOf marshals v and wraps the result.
func ParserOf(v any) (*Parser, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Parser{raw: raw}, nil
}

func (p *Parser) Raw() []byte {
	return p.raw
}

func (p *Parser) Decode(v any) error {
	return json.Unmarshal(p.raw, v)
}

// DocWriteResult is the response body of put, update and delete.
type DocWriteResult struct {
	Index       string `json:"_index"`
	Id          string `json:"_id"`
	Version     int64  `json:"_version"`
	SeqNo       int64  `json:"_seq_no"`
	PrimaryTerm int64  `json:"_primary_term"`
	Result      string `json:"result"`
}

func (p *Parser) DocWriteResult() (*DocWriteResult, error) {
	r := &DocWriteResult{}
	if err := p.Decode(r); err != nil {
		return nil, err
	}
	return r, nil
}

// GetResult is the response body of get.
type GetResult struct {
	Index       string         `json:"_index"`
	Id          string         `json:"_id"`
	Found       bool           `json:"found"`
	SeqNo       int64          `json:"_seq_no,omitempty"`
	PrimaryTerm int64          `json:"_primary_term,omitempty"`
	Source      map[string]any `json:"_source,omitempty"`
}

// SearchResult is the response body of search.
type SearchResult struct {
	Took     int64      `json:"took"`
	TimedOut bool       `json:"timed_out"`
	Hits     SearchHits `json:"hits"`
}

type SearchHits struct {
	Total TotalHits   `json:"total"`
	Hits  []SearchHit `json:"hits"`
}

type TotalHits struct {
	Value    int64  `json:"value"`
	Relation string `json:"relation"`
}

type SearchHit struct {
	Index  string          `json:"_index"`
	Id     string          `json:"_id"`
	Score  *float64        `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

// DecodeSource decodes the source of the hit into v.
func (h SearchHit) DecodeSource(v any) error {
	return json.Unmarshal(h.Source, v)
}

// DataObjectResponse is a result of an operation on one document.
type DataObjectResponse interface {
	Id() string

	// Parser is non-nil unless IsFailed.
	Parser() *Parser

	IsFailed() bool

	// Cause is why the operation failed. nil unless IsFailed.
	Cause() error
}

type baseResponse struct {
	id     string
	parser *Parser
	failed bool
	cause  error
}

func (r *baseResponse) Id() string {
	return r.id
}

func (r *baseResponse) Parser() *Parser {
	return r.parser
}

func (r *baseResponse) IsFailed() bool {
	return r.failed
}

func (r *baseResponse) Cause() error {
	return r.cause
}

// ResponseBuilder builds responses of put, get, update and delete.
type ResponseBuilder[R DataObjectResponse] struct {
	base  baseResponse
	build func(baseResponse) R
}

func (b *ResponseBuilder[R]) Id(id string) *ResponseBuilder[R] {
	b.base.id = id
	return b
}

func (b *ResponseBuilder[R]) Parser(p *Parser) *ResponseBuilder[R] {
	b.base.parser = p
	return b
}

// Failed marks the response failed by cause.
func (b *ResponseBuilder[R]) Failed(cause error) *ResponseBuilder[R] {
	b.base.failed = true
	b.base.cause = cause
	return b
}

func (b *ResponseBuilder[R]) Build() R {
	return b.build(b.base)
}

type PutDataObjectResponse struct {
	baseResponse
}

func NewPutDataObjectResponse() *ResponseBuilder[*PutDataObjectResponse] {
	return &ResponseBuilder[*PutDataObjectResponse]{
		build: func(b baseResponse) *PutDataObjectResponse { return &PutDataObjectResponse{b} },
	}
}

type GetDataObjectResponse struct {
	baseResponse
	result *GetResult
}

func NewGetDataObjectResponse() *ResponseBuilder[*GetDataObjectResponse] {
	return &ResponseBuilder[*GetDataObjectResponse]{
		build: func(b baseResponse) *GetDataObjectResponse {
			r := &GetDataObjectResponse{baseResponse: b}
			if b.parser != nil {
				gr := &GetResult{}
				if err := b.parser.Decode(gr); err == nil {
					r.result = gr
				}
			}
			return r
		},
	}
}

// Found tells the document exists.
func (r *GetDataObjectResponse) Found() bool {
	return r.result != nil && r.result.Found
}

// Source is the document, or nil if not found.
func (r *GetDataObjectResponse) Source() map[string]any {
	if !r.Found() {
		return nil
	}
	return r.result.Source
}

// DecodeSource decodes the found document into v.
func (r *GetDataObjectResponse) DecodeSource(v any) error {
	if !r.Found() {
		return errors.New("document is not found")
	}
	raw, err := json.Marshal(r.result.Source)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

type UpdateDataObjectResponse struct {
	baseResponse
}

func NewUpdateDataObjectResponse() *ResponseBuilder[*UpdateDataObjectResponse] {
	return &ResponseBuilder[*UpdateDataObjectResponse]{
		build: func(b baseResponse) *UpdateDataObjectResponse { return &UpdateDataObjectResponse{b} },
	}
}

type DeleteDataObjectResponse struct {
	baseResponse
}

func NewDeleteDataObjectResponse() *ResponseBuilder[*DeleteDataObjectResponse] {
	return &ResponseBuilder[*DeleteDataObjectResponse]{
		build: func(b baseResponse) *DeleteDataObjectResponse { return &DeleteDataObjectResponse{b} },
	}
}

// SearchDataObjectResponse is a result of search.
type SearchDataObjectResponse struct {
	parser *Parser
}

func NewSearchDataObjectResponse(parser *Parser) *SearchDataObjectResponse {
	return &SearchDataObjectResponse{parser: parser}
}

func (r *SearchDataObjectResponse) Parser() *Parser {
	return r.parser
}

// Hits decodes hits in the response.
func (r *SearchDataObjectResponse) Hits() (*SearchHits, error) {
	sr := &SearchResult{}
	if err := r.parser.Decode(sr); err != nil {
		return nil, err
	}
	return &sr.Hits, nil
}
