// Package memory is a sdk.Delegate holding documents in the process.
//
// It is for single node deployment and tests.
package memory

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/opst/mlcommons/pkg/sdk"
)

const primaryTerm int64 = 1

type document struct {
	tenantId string
	source   map[string]any
	seqNo    int64
	version  int64
}

type index struct {
	docs  map[string]*document
	seqNo int64
}

// Delegate stores documents in maps keyed by index and id.
type Delegate struct {
	mu      sync.RWMutex
	indices map[string]*index
}

var _ sdk.Delegate = &Delegate{}

func New() *Delegate {
	return &Delegate{indices: map[string]*index{}}
}

func (d *Delegate) index(name string) *index {
	idx, ok := d.indices[name]
	if !ok {
		idx = &index{docs: map[string]*document{}, seqNo: -1}
		d.indices[name] = idx
	}
	return idx
}

func writeResult(indexName, id string, doc *document, result string) (*sdk.Parser, error) {
	return sdk.ParserOf(sdk.DocWriteResult{
		Index:       indexName,
		Id:          id,
		Version:     doc.version,
		SeqNo:       doc.seqNo,
		PrimaryTerm: primaryTerm,
		Result:      result,
	})
}

func tenantMismatch(doc *document, tenantId string, isMultiTenancyEnabled bool) bool {
	return isMultiTenancyEnabled && doc.tenantId != tenantId
}

func (d *Delegate) put(req *sdk.PutDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.PutDataObjectResponse, error) {
	source, err := sdk.SourceOf(req.DataObject())
	if err != nil {
		return nil, err
	}
	source = sdk.CopySource(source)
	if isMultiTenancyEnabled {
		source[sdk.TenantIdField] = req.TenantId()
	}

	id := req.Id()
	if id == "" {
		id = uuid.NewString()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.index(req.Index())
	result := sdk.ResultCreated
	var version int64 = 1
	if current, ok := idx.docs[id]; ok {
		if !req.OverwriteIfExists() {
			return nil, sdk.NewStatusError(
				http.StatusConflict, "[%s]: version conflict, document already exists", id,
			)
		}
		if tenantMismatch(current, req.TenantId(), isMultiTenancyEnabled) {
			return nil, sdk.NewStatusError(http.StatusNotFound, "document [%s] is not found", id)
		}
		result = sdk.ResultUpdated
		version = current.version + 1
	}

	idx.seqNo += 1
	doc := &document{tenantId: req.TenantId(), source: source, seqNo: idx.seqNo, version: version}
	idx.docs[id] = doc

	p, err := writeResult(req.Index(), id, doc, result)
	if err != nil {
		return nil, err
	}
	return sdk.NewPutDataObjectResponse().Id(id).Parser(p).Build(), nil
}

func (d *Delegate) get(req *sdk.GetDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.GetDataObjectResponse, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := sdk.GetResult{Index: req.Index(), Id: req.Id()}
	if idx, ok := d.indices[req.Index()]; ok {
		if doc, ok := idx.docs[req.Id()]; ok {
			if tenantMismatch(doc, req.TenantId(), isMultiTenancyEnabled) {
				return nil, sdk.NewStatusError(http.StatusNotFound, "document [%s] is not found", req.Id())
			}
			result.Found = true
			result.SeqNo = doc.seqNo
			result.PrimaryTerm = primaryTerm
			result.Source = req.FetchSourceContext().Filter(sdk.CopySource(doc.source))
		}
	}

	p, err := sdk.ParserOf(result)
	if err != nil {
		return nil, err
	}
	return sdk.NewGetDataObjectResponse().Id(req.Id()).Parser(p).Build(), nil
}

func (d *Delegate) update(req *sdk.UpdateDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.UpdateDataObjectResponse, error) {
	patch, err := sdk.SourceOf(req.DataObject())
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	idx, ok := d.indices[req.Index()]
	if !ok {
		return nil, sdk.NewStatusError(http.StatusNotFound, "document [%s] is not found", req.Id())
	}
	current, ok := idx.docs[req.Id()]
	if !ok || tenantMismatch(current, req.TenantId(), isMultiTenancyEnabled) {
		return nil, sdk.NewStatusError(http.StatusNotFound, "document [%s] is not found", req.Id())
	}
	if s := req.IfSeqNo(); s != nil && *s != current.seqNo {
		return nil, sdk.NewStatusError(
			http.StatusConflict, "[%s]: version conflict, required seqNo [%d], current seqNo [%d]",
			req.Id(), *s, current.seqNo,
		)
	}
	if t := req.IfPrimaryTerm(); t != nil && *t != primaryTerm {
		return nil, sdk.NewStatusError(
			http.StatusConflict, "[%s]: version conflict, required primary term [%d], current primary term [%d]",
			req.Id(), *t, primaryTerm,
		)
	}

	merged := sdk.MergeSource(sdk.CopySource(current.source), sdk.CopySource(patch))
	if isMultiTenancyEnabled {
		merged[sdk.TenantIdField] = current.tenantId
	}
	idx.seqNo += 1
	doc := &document{tenantId: current.tenantId, source: merged, seqNo: idx.seqNo, version: current.version + 1}
	idx.docs[req.Id()] = doc

	p, err := writeResult(req.Index(), req.Id(), doc, sdk.ResultUpdated)
	if err != nil {
		return nil, err
	}
	return sdk.NewUpdateDataObjectResponse().Id(req.Id()).Parser(p).Build(), nil
}

func (d *Delegate) delete(req *sdk.DeleteDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.DeleteDataObjectResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.index(req.Index())
	result := sdk.ResultNotFound
	doc := &document{seqNo: idx.seqNo}
	if current, ok := idx.docs[req.Id()]; ok && !tenantMismatch(current, req.TenantId(), isMultiTenancyEnabled) {
		delete(idx.docs, req.Id())
		idx.seqNo += 1
		doc = &document{seqNo: idx.seqNo, version: current.version + 1}
		result = sdk.ResultDeleted
	}

	p, err := writeResult(req.Index(), req.Id(), doc, result)
	if err != nil {
		return nil, err
	}
	return sdk.NewDeleteDataObjectResponse().Id(req.Id()).Parser(p).Build(), nil
}

func (d *Delegate) search(req *sdk.SearchDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.SearchDataObjectResponse, error) {
	source := req.SearchSource()
	if isMultiTenancyEnabled {
		source = sdk.WithTenantFilter(source, req.TenantId())
	}

	d.mu.RLock()
	docs := []sdk.LocalDocument{}
	for _, name := range req.Indices() {
		idx, ok := d.indices[name]
		if !ok {
			continue
		}
		for id, doc := range idx.docs {
			docs = append(docs, sdk.LocalDocument{Index: name, Id: id, Source: sdk.CopySource(doc.source)})
		}
	}
	d.mu.RUnlock()

	result, err := sdk.EvaluateSearch(docs, source)
	if err != nil {
		return nil, err
	}
	p, err := sdk.ParserOf(result)
	if err != nil {
		return nil, err
	}
	return sdk.NewSearchDataObjectResponse(p), nil
}

func (d *Delegate) PutDataObjectAsync(ctx context.Context, req *sdk.PutDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.PutDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(context.Context) (*sdk.PutDataObjectResponse, error) {
		return d.put(req, isMultiTenancyEnabled)
	})
}

func (d *Delegate) GetDataObjectAsync(ctx context.Context, req *sdk.GetDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.GetDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(context.Context) (*sdk.GetDataObjectResponse, error) {
		return d.get(req, isMultiTenancyEnabled)
	})
}

func (d *Delegate) UpdateDataObjectAsync(ctx context.Context, req *sdk.UpdateDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.UpdateDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(context.Context) (*sdk.UpdateDataObjectResponse, error) {
		return d.update(req, isMultiTenancyEnabled)
	})
}

func (d *Delegate) DeleteDataObjectAsync(ctx context.Context, req *sdk.DeleteDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.DeleteDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(context.Context) (*sdk.DeleteDataObjectResponse, error) {
		return d.delete(req, isMultiTenancyEnabled)
	})
}

func (d *Delegate) BulkDataObjectAsync(ctx context.Context, req *sdk.BulkDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.BulkDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.BulkDataObjectResponse, error) {
		return sdk.BulkEach(ctx, req, func(_ context.Context, r sdk.DataObjectRequest) (sdk.DataObjectResponse, error) {
			switch r := r.(type) {
			case *sdk.PutDataObjectRequest:
				return d.put(r, isMultiTenancyEnabled)
			case *sdk.UpdateDataObjectRequest:
				return d.update(r, isMultiTenancyEnabled)
			case *sdk.DeleteDataObjectRequest:
				return d.delete(r, isMultiTenancyEnabled)
			default:
				return nil, sdk.NewIllegalArgumentError("unsupported request in bulk: %T", r)
			}
		})
	})
}

func (d *Delegate) SearchDataObjectAsync(ctx context.Context, req *sdk.SearchDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.SearchDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(context.Context) (*sdk.SearchDataObjectResponse, error) {
		return d.search(req, isMultiTenancyEnabled)
	})
}
