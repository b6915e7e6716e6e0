// Package remote is a sdk.Delegate talking to an OpenSearch cluster over REST.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	awssigner "github.com/opensearch-project/opensearch-go/v2/signer/awsv2"
	xe "github.com/opst/mlcommons/pkg/errors"
	"github.com/opst/mlcommons/pkg/sdk"
)

// AWSServiceName is the signing name of Amazon OpenSearch Service.
const AWSServiceName = "es"

type Delegate struct {
	transport opensearchapi.Transport
	refresh   string
}

var _ sdk.Delegate = &Delegate{}

type Option func(*Delegate) *Delegate

// WithRefresh sets the refresh policy of writes: "true", "false" or "wait_for".
//
// By default, writes are visible to searches right after they are done.
func WithRefresh(policy string) Option {
	return func(d *Delegate) *Delegate {
		d.refresh = policy
		return d
	}
}

// New creates a Delegate on transport, which is usually *opensearch.Client.
func New(transport opensearchapi.Transport, options ...Option) *Delegate {
	d := &Delegate{transport: transport, refresh: "true"}
	for _, opt := range options {
		d = opt(d)
	}
	return d
}

// Connect creates a client of the cluster at endpoint.
func Connect(endpoint string, username string, password string) (*opensearch.Client, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{endpoint},
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return client, nil
}

// ConnectAWS creates a client of Amazon OpenSearch Service at endpoint, signing requests with SigV4.
func ConnectAWS(endpoint string, awsConfig aws.Config, service string) (*opensearch.Client, error) {
	signer, err := awssigner.NewSignerWithService(awsConfig, service)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{endpoint},
		Signer:    signer,
	})
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return client, nil
}

type errorBody struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// readResponse reads body of resp. When resp is an error, it returns *sdk.StatusError.
func readResponse(resp *opensearchapi.Response, err error) ([]byte, error) {
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if !resp.IsError() {
		return body, nil
	}

	eb := errorBody{}
	if json.Unmarshal(body, &eb) == nil && eb.Error.Reason != "" {
		return body, sdk.NewStatusError(resp.StatusCode, "%s: %s", eb.Error.Type, eb.Error.Reason)
	}
	return body, sdk.NewStatusError(resp.StatusCode, "%s", string(body))
}

func intPtr(v *int64) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

func marshal(v any) (io.Reader, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return bytes.NewReader(raw), nil
}

func putSource(req *sdk.PutDataObjectRequest, isMultiTenancyEnabled bool) (map[string]any, error) {
	source, err := sdk.SourceOf(req.DataObject())
	if err != nil {
		return nil, err
	}
	source = sdk.CopySource(source)
	if isMultiTenancyEnabled {
		source[sdk.TenantIdField] = req.TenantId()
	}
	return source, nil
}

func (d *Delegate) put(ctx context.Context, req *sdk.PutDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.PutDataObjectResponse, error) {
	source, err := putSource(req, isMultiTenancyEnabled)
	if err != nil {
		return nil, err
	}
	body, err := marshal(source)
	if err != nil {
		return nil, err
	}

	r := opensearchapi.IndexRequest{
		Index:      req.Index(),
		DocumentID: req.Id(),
		Body:       body,
		Refresh:    d.refresh,
	}
	if !req.OverwriteIfExists() {
		r.OpType = "create"
	}
	raw, err := readResponse(r.Do(ctx, d.transport))
	if err != nil {
		return nil, err
	}

	p := sdk.NewParser(raw)
	written, err := p.DocWriteResult()
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return sdk.NewPutDataObjectResponse().Id(written.Id).Parser(p).Build(), nil
}

func (d *Delegate) fetch(ctx context.Context, index, id string, fsc *sdk.FetchSourceContext) (*sdk.GetResult, []byte, error) {
	r := opensearchapi.GetRequest{Index: index, DocumentID: id}
	if fsc != nil && fsc.FetchSource {
		r.SourceIncludes = fsc.Includes
		r.SourceExcludes = fsc.Excludes
	}
	raw, err := readResponse(r.Do(ctx, d.transport))
	if err != nil {
		if sdk.IsNotFound(err) {
			// missing document or index.
			return &sdk.GetResult{Index: index, Id: id, Found: false}, nil, nil
		}
		return nil, nil, err
	}
	result := &sdk.GetResult{}
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, nil, xe.Wrap(err)
	}
	return result, raw, nil
}

func ownedBy(result *sdk.GetResult, tenantId string) bool {
	t, _ := result.Source[sdk.TenantIdField].(string)
	return t == tenantId
}

func (d *Delegate) get(ctx context.Context, req *sdk.GetDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.GetDataObjectResponse, error) {
	fsc := req.FetchSourceContext()
	if isMultiTenancyEnabled && fsc != nil && len(fsc.Includes) > 0 {
		// tenant id is needed to be checked.
		fsc = &sdk.FetchSourceContext{FetchSource: true, Excludes: fsc.Excludes}
	}
	result, _, err := d.fetch(ctx, req.Index(), req.Id(), fsc)
	if err != nil {
		return nil, err
	}
	if result.Found && isMultiTenancyEnabled && !ownedBy(result, req.TenantId()) {
		return nil, sdk.NewStatusError(http.StatusNotFound, "document [%s] is not found", req.Id())
	}
	if result.Found {
		result.Source = req.FetchSourceContext().Filter(result.Source)
	}

	p, err := sdk.ParserOf(result)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return sdk.NewGetDataObjectResponse().Id(req.Id()).Parser(p).Build(), nil
}

func (d *Delegate) checkOwner(ctx context.Context, index, id, tenantId string) error {
	result, _, err := d.fetch(ctx, index, id, sdk.FetchAll)
	if err != nil {
		return err
	}
	if !result.Found || !ownedBy(result, tenantId) {
		return sdk.NewStatusError(http.StatusNotFound, "document [%s] is not found", id)
	}
	return nil
}

func (d *Delegate) update(ctx context.Context, req *sdk.UpdateDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.UpdateDataObjectResponse, error) {
	patch, err := sdk.SourceOf(req.DataObject())
	if err != nil {
		return nil, err
	}
	if isMultiTenancyEnabled {
		if err := d.checkOwner(ctx, req.Index(), req.Id(), req.TenantId()); err != nil {
			return nil, err
		}
		patch = sdk.CopySource(patch)
		delete(patch, sdk.TenantIdField)
	}
	body, err := marshal(map[string]any{"doc": patch})
	if err != nil {
		return nil, err
	}

	r := opensearchapi.UpdateRequest{
		Index:         req.Index(),
		DocumentID:    req.Id(),
		Body:          body,
		IfSeqNo:       intPtr(req.IfSeqNo()),
		IfPrimaryTerm: intPtr(req.IfPrimaryTerm()),
		Refresh:       d.refresh,
	}
	if n := req.RetryOnConflict(); n > 0 {
		r.RetryOnConflict = &n
	}
	raw, err := readResponse(r.Do(ctx, d.transport))
	if err != nil {
		return nil, err
	}
	return sdk.NewUpdateDataObjectResponse().Id(req.Id()).Parser(sdk.NewParser(raw)).Build(), nil
}

func (d *Delegate) delete(ctx context.Context, req *sdk.DeleteDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.DeleteDataObjectResponse, error) {
	if isMultiTenancyEnabled {
		if err := d.checkOwner(ctx, req.Index(), req.Id(), req.TenantId()); err != nil {
			if !sdk.IsNotFound(err) {
				return nil, err
			}
			p, err := sdk.ParserOf(sdk.DocWriteResult{Index: req.Index(), Id: req.Id(), Result: sdk.ResultNotFound})
			if err != nil {
				return nil, xe.Wrap(err)
			}
			return sdk.NewDeleteDataObjectResponse().Id(req.Id()).Parser(p).Build(), nil
		}
	}

	r := opensearchapi.DeleteRequest{Index: req.Index(), DocumentID: req.Id(), Refresh: d.refresh}
	raw, err := readResponse(r.Do(ctx, d.transport))
	if err == nil {
		return sdk.NewDeleteDataObjectResponse().Id(req.Id()).Parser(sdk.NewParser(raw)).Build(), nil
	}
	if !sdk.IsNotFound(err) {
		return nil, err
	}

	// missing document responds 404 with "result": "not_found", but missing index does not.
	p := sdk.NewParser(raw)
	if written, derr := p.DocWriteResult(); derr != nil || written.Result != sdk.ResultNotFound {
		if p, err = sdk.ParserOf(sdk.DocWriteResult{Index: req.Index(), Id: req.Id(), Result: sdk.ResultNotFound}); err != nil {
			return nil, xe.Wrap(err)
		}
	}
	return sdk.NewDeleteDataObjectResponse().Id(req.Id()).Parser(p).Build(), nil
}

func (d *Delegate) search(ctx context.Context, req *sdk.SearchDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.SearchDataObjectResponse, error) {
	source := req.SearchSource()
	if isMultiTenancyEnabled {
		source = sdk.WithTenantFilter(source, req.TenantId())
	}
	if source == nil {
		source = &sdk.SearchSource{}
	}
	body, err := marshal(source)
	if err != nil {
		return nil, err
	}

	r := opensearchapi.SearchRequest{Index: req.Indices(), Body: body}
	raw, err := readResponse(r.Do(ctx, d.transport))
	if err != nil {
		return nil, err
	}
	return sdk.NewSearchDataObjectResponse(sdk.NewParser(raw)), nil
}

type bulkItemResult struct {
	sdk.DocWriteResult
	Status int        `json:"status"`
	Error  *errorInfo `json:"error,omitempty"`
}

type errorInfo struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type bulkResult struct {
	Took       int64                        `json:"took"`
	IngestTook *int64                       `json:"ingest_took,omitempty"`
	Errors     bool                         `json:"errors"`
	Items      []map[string]json.RawMessage `json:"items"`
}

func bulkAction(req sdk.DataObjectRequest, isMultiTenancyEnabled bool) ([]any, error) {
	meta := map[string]any{"_index": req.Index()}
	if req.Id() != "" {
		meta["_id"] = req.Id()
	}

	switch r := req.(type) {
	case *sdk.PutDataObjectRequest:
		source, err := putSource(r, isMultiTenancyEnabled)
		if err != nil {
			return nil, err
		}
		op := "index"
		if !r.OverwriteIfExists() {
			op = "create"
		}
		return []any{map[string]any{op: meta}, source}, nil
	case *sdk.UpdateDataObjectRequest:
		patch, err := sdk.SourceOf(r.DataObject())
		if err != nil {
			return nil, err
		}
		if s := r.IfSeqNo(); s != nil {
			meta["if_seq_no"] = *s
		}
		if t := r.IfPrimaryTerm(); t != nil {
			meta["if_primary_term"] = *t
		}
		if n := r.RetryOnConflict(); n > 0 {
			meta["retry_on_conflict"] = n
		}
		return []any{map[string]any{"update": meta}, map[string]any{"doc": patch}}, nil
	case *sdk.DeleteDataObjectRequest:
		return []any{map[string]any{"delete": meta}}, nil
	}
	return nil, sdk.NewIllegalArgumentError("unsupported request in bulk: %T", req)
}

func (d *Delegate) bulk(ctx context.Context, req *sdk.BulkDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.BulkDataObjectResponse, error) {
	requests := req.Requests()
	if len(requests) == 0 {
		return sdk.NewBulkDataObjectResponse(nil, 0, sdk.IngestNotUsed, nil), nil
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	for _, r := range requests {
		lines, err := bulkAction(r, isMultiTenancyEnabled)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			if err := enc.Encode(line); err != nil {
				return nil, xe.Wrap(err)
			}
		}
	}

	br := opensearchapi.BulkRequest{Body: buf, Refresh: d.refresh}
	raw, err := readResponse(br.Do(ctx, d.transport))
	if err != nil {
		return nil, err
	}

	result := bulkResult{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, xe.Wrap(err)
	}
	if len(result.Items) != len(requests) {
		return nil, xe.Wrap(fmt.Errorf(
			"bulk response has %d items for %d requests", len(result.Items), len(requests),
		))
	}

	responses := make([]sdk.DataObjectResponse, 0, len(requests))
	for nth, item := range result.Items {
		var itemRaw json.RawMessage
		for _, v := range item {
			itemRaw = v
		}
		ir := bulkItemResult{}
		if err := json.Unmarshal(itemRaw, &ir); err != nil {
			return nil, xe.Wrap(err)
		}
		if ir.Error != nil {
			cause := sdk.NewStatusError(ir.Status, "%s: %s", ir.Error.Type, ir.Error.Reason)
			responses = append(responses, sdk.FailedResponse(requests[nth], cause))
			continue
		}
		responses = append(responses, succeeded(requests[nth], ir.Id, sdk.NewParser(itemRaw)))
	}

	ingestTook := sdk.IngestNotUsed
	if result.IngestTook != nil {
		ingestTook = *result.IngestTook
	}
	return sdk.NewBulkDataObjectResponse(responses, result.Took, ingestTook, sdk.NewParser(raw)), nil
}

func succeeded(req sdk.DataObjectRequest, id string, p *sdk.Parser) sdk.DataObjectResponse {
	switch req.(type) {
	case *sdk.PutDataObjectRequest:
		return sdk.NewPutDataObjectResponse().Id(id).Parser(p).Build()
	case *sdk.UpdateDataObjectRequest:
		return sdk.NewUpdateDataObjectResponse().Id(id).Parser(p).Build()
	default:
		return sdk.NewDeleteDataObjectResponse().Id(id).Parser(p).Build()
	}
}

func (d *Delegate) PutDataObjectAsync(ctx context.Context, req *sdk.PutDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.PutDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.PutDataObjectResponse, error) {
		return d.put(ctx, req, isMultiTenancyEnabled)
	})
}

func (d *Delegate) GetDataObjectAsync(ctx context.Context, req *sdk.GetDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.GetDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.GetDataObjectResponse, error) {
		return d.get(ctx, req, isMultiTenancyEnabled)
	})
}

func (d *Delegate) UpdateDataObjectAsync(ctx context.Context, req *sdk.UpdateDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.UpdateDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.UpdateDataObjectResponse, error) {
		return d.update(ctx, req, isMultiTenancyEnabled)
	})
}

func (d *Delegate) DeleteDataObjectAsync(ctx context.Context, req *sdk.DeleteDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.DeleteDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.DeleteDataObjectResponse, error) {
		return d.delete(ctx, req, isMultiTenancyEnabled)
	})
}

func (d *Delegate) BulkDataObjectAsync(ctx context.Context, req *sdk.BulkDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.BulkDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.BulkDataObjectResponse, error) {
		return d.bulk(ctx, req, isMultiTenancyEnabled)
	})
}

func (d *Delegate) SearchDataObjectAsync(ctx context.Context, req *sdk.SearchDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.SearchDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.SearchDataObjectResponse, error) {
		return d.search(ctx, req, isMultiTenancyEnabled)
	})
}
