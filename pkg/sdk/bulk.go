package sdk

import (
	"context"
	"reflect"
	"sort"
	"time"
)

// IngestNotUsed is IngestTookInMillis when no ingest pipeline ran.
const IngestNotUsed int64 = -1

// BulkDataObjectRequest is a batch of write requests.
//
// Requests added are kept by reference: Add may modify their index and tenant id in place.
type BulkDataObjectRequest struct {
	requests       []DataObjectRequest
	indices        map[string]struct{}
	globalIndex    string
	globalTenantId string
}

type BulkDataObjectRequestBuilder struct {
	globalIndex    string
	globalTenantId string
}

func NewBulkDataObjectRequest() *BulkDataObjectRequestBuilder {
	return &BulkDataObjectRequestBuilder{}
}

// GlobalIndex is used for requests without their own index.
func (b *BulkDataObjectRequestBuilder) GlobalIndex(index string) *BulkDataObjectRequestBuilder {
	b.globalIndex = index
	return b
}

// GlobalTenantId, when not empty, overrides tenant id of every request.
func (b *BulkDataObjectRequestBuilder) GlobalTenantId(tenantId string) *BulkDataObjectRequestBuilder {
	b.globalTenantId = tenantId
	return b
}

func (b *BulkDataObjectRequestBuilder) Build() *BulkDataObjectRequest {
	return &BulkDataObjectRequest{
		indices:        map[string]struct{}{},
		globalIndex:    b.globalIndex,
		globalTenantId: b.globalTenantId,
	}
}

// Add appends a write request.
//
// It fails with *IllegalArgumentError when the request is not a write request,
// or when neither the request nor the bulk request has an index.
func (r *BulkDataObjectRequest) Add(req DataObjectRequest) error {
	if !req.IsWriteRequest() {
		return NewIllegalArgumentError("No write request is allowed in bulk: %s", typeName(req))
	}
	if req.Index() == "" {
		if r.globalIndex == "" {
			return NewIllegalArgumentError(
				"Either the request [%s] or the bulk request must specify an index.", typeName(req),
			)
		}
		req.SetIndex(r.globalIndex)
	}
	if r.globalTenantId != "" {
		req.SetTenantId(r.globalTenantId)
	}

	r.indices[req.Index()] = struct{}{}
	r.requests = append(r.requests, req)
	return nil
}

// Requests returns a snapshot of requests in added order.
func (r *BulkDataObjectRequest) Requests() []DataObjectRequest {
	return append([]DataObjectRequest{}, r.requests...)
}

// Indices returns a snapshot of indices of requests, sorted.
func (r *BulkDataObjectRequest) Indices() []string {
	indices := make([]string, 0, len(r.indices))
	for idx := range r.indices {
		indices = append(indices, idx)
	}
	sort.Strings(indices)
	return indices
}

func (r *BulkDataObjectRequest) GlobalIndex() string {
	return r.globalIndex
}

func (r *BulkDataObjectRequest) GlobalTenantId() string {
	return r.globalTenantId
}

// BulkDataObjectResponse holds responses in the order of requests.
type BulkDataObjectResponse struct {
	responses          []DataObjectResponse
	tookInMillis       int64
	ingestTookInMillis int64
	parser             *Parser
}

func NewBulkDataObjectResponse(responses []DataObjectResponse, tookInMillis int64, ingestTookInMillis int64, parser *Parser) *BulkDataObjectResponse {
	return &BulkDataObjectResponse{
		responses:          append([]DataObjectResponse{}, responses...),
		tookInMillis:       tookInMillis,
		ingestTookInMillis: ingestTookInMillis,
		parser:             parser,
	}
}

func (r *BulkDataObjectResponse) Responses() []DataObjectResponse {
	return append([]DataObjectResponse{}, r.responses...)
}

func (r *BulkDataObjectResponse) TookInMillis() int64 {
	return r.tookInMillis
}

// IngestTookInMillis is IngestNotUsed when no ingest pipeline ran.
func (r *BulkDataObjectResponse) IngestTookInMillis() int64 {
	return r.ingestTookInMillis
}

// Parser is the raw bulk response of the store. It can be nil.
func (r *BulkDataObjectResponse) Parser() *Parser {
	return r.parser
}

// HasFailures reports whether any of responses failed.
func (r *BulkDataObjectResponse) HasFailures() bool {
	for _, resp := range r.responses {
		if resp.IsFailed() {
			return true
		}
	}
	return false
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// FailedResponse builds a failed response typed after req.
func FailedResponse(req DataObjectRequest, cause error) DataObjectResponse {
	switch req.(type) {
	case *PutDataObjectRequest:
		return NewPutDataObjectResponse().Id(req.Id()).Failed(cause).Build()
	case *UpdateDataObjectRequest:
		return NewUpdateDataObjectResponse().Id(req.Id()).Failed(cause).Build()
	case *DeleteDataObjectRequest:
		return NewDeleteDataObjectResponse().Id(req.Id()).Failed(cause).Build()
	default:
		return NewGetDataObjectResponse().Id(req.Id()).Failed(cause).Build()
	}
}

// BulkEach runs each request of bulk one by one with do.
//
// Responses are in the order of requests. An error from do becomes a failed response
// and does not stop the rest.
func BulkEach(
	ctx context.Context, bulk *BulkDataObjectRequest,
	do func(context.Context, DataObjectRequest) (DataObjectResponse, error),
) (*BulkDataObjectResponse, error) {
	started := time.Now()
	requests := bulk.Requests()
	responses := make([]DataObjectResponse, 0, len(requests))
	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := do(ctx, req)
		if err != nil {
			resp = FailedResponse(req, err)
		}
		responses = append(responses, resp)
	}
	return NewBulkDataObjectResponse(responses, time.Since(started).Milliseconds(), IngestNotUsed, nil), nil
}
