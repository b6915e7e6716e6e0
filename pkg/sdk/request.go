package sdk

import "encoding/json"

// DataObjectRequest is a request addressing one document in an index.
type DataObjectRequest interface {
	// Index is the table or collection where the document lives.
	Index() string

	// SetIndex replaces the index in place.
	SetIndex(index string)

	// Id is the key of the document. It can be empty for creation.
	Id() string

	// TenantId is the partition key for multi-tenancy. It can be empty.
	TenantId() string

	// SetTenantId replaces the tenant id in place.
	SetTenantId(tenantId string)

	// IsWriteRequest tells whether the request modifies the store.
	IsWriteRequest() bool
}

type baseRequest struct {
	index    string
	id       string
	tenantId string
}

func (r *baseRequest) Index() string {
	return r.index
}

func (r *baseRequest) SetIndex(index string) {
	r.index = index
}

func (r *baseRequest) Id() string {
	return r.id
}

func (r *baseRequest) TenantId() string {
	return r.tenantId
}

func (r *baseRequest) SetTenantId(tenantId string) {
	r.tenantId = tenantId
}

// PutDataObjectRequest puts a whole document.
type PutDataObjectRequest struct {
	baseRequest
	overwriteIfExists bool
	dataObject        any
}

var _ DataObjectRequest = &PutDataObjectRequest{}

func (*PutDataObjectRequest) IsWriteRequest() bool {
	return true
}

// OverwriteIfExists is false when the put should fail on existing document.
func (r *PutDataObjectRequest) OverwriteIfExists() bool {
	return r.overwriteIfExists
}

// DataObject is the document to be written. It is marshalled as JSON.
func (r *PutDataObjectRequest) DataObject() any {
	return r.dataObject
}

type PutDataObjectRequestBuilder struct {
	req PutDataObjectRequest
}

func NewPutDataObjectRequest() *PutDataObjectRequestBuilder {
	return &PutDataObjectRequestBuilder{req: PutDataObjectRequest{overwriteIfExists: true}}
}

func (b *PutDataObjectRequestBuilder) Index(index string) *PutDataObjectRequestBuilder {
	b.req.index = index
	return b
}

func (b *PutDataObjectRequestBuilder) Id(id string) *PutDataObjectRequestBuilder {
	b.req.id = id
	return b
}

func (b *PutDataObjectRequestBuilder) TenantId(tenantId string) *PutDataObjectRequestBuilder {
	b.req.tenantId = tenantId
	return b
}

func (b *PutDataObjectRequestBuilder) OverwriteIfExists(overwrite bool) *PutDataObjectRequestBuilder {
	b.req.overwriteIfExists = overwrite
	return b
}

func (b *PutDataObjectRequestBuilder) DataObject(obj any) *PutDataObjectRequestBuilder {
	b.req.dataObject = obj
	return b
}

func (b *PutDataObjectRequestBuilder) Build() *PutDataObjectRequest {
	req := b.req
	return &req
}

// FetchSourceContext selects fields of a document to be returned.
type FetchSourceContext struct {
	FetchSource bool
	Includes    []string
	Excludes    []string
}

// FetchAll fetches whole source.
var FetchAll = &FetchSourceContext{FetchSource: true}

// GetDataObjectRequest gets a document.
type GetDataObjectRequest struct {
	baseRequest
	fetchSourceContext *FetchSourceContext
}

var _ DataObjectRequest = &GetDataObjectRequest{}

func (*GetDataObjectRequest) IsWriteRequest() bool {
	return false
}

// FetchSourceContext can be nil, which means FetchAll.
func (r *GetDataObjectRequest) FetchSourceContext() *FetchSourceContext {
	return r.fetchSourceContext
}

type GetDataObjectRequestBuilder struct {
	req GetDataObjectRequest
}

func NewGetDataObjectRequest() *GetDataObjectRequestBuilder {
	return &GetDataObjectRequestBuilder{}
}

func (b *GetDataObjectRequestBuilder) Index(index string) *GetDataObjectRequestBuilder {
	b.req.index = index
	return b
}

func (b *GetDataObjectRequestBuilder) Id(id string) *GetDataObjectRequestBuilder {
	b.req.id = id
	return b
}

func (b *GetDataObjectRequestBuilder) TenantId(tenantId string) *GetDataObjectRequestBuilder {
	b.req.tenantId = tenantId
	return b
}

func (b *GetDataObjectRequestBuilder) FetchSourceContext(fsc *FetchSourceContext) *GetDataObjectRequestBuilder {
	b.req.fetchSourceContext = fsc
	return b
}

func (b *GetDataObjectRequestBuilder) Build() *GetDataObjectRequest {
	req := b.req
	return &req
}

// UpdateDataObjectRequest merges fields into an existing document.
type UpdateDataObjectRequest struct {
	baseRequest
	dataObject      any
	ifSeqNo         *int64
	ifPrimaryTerm   *int64
	retryOnConflict int
}

var _ DataObjectRequest = &UpdateDataObjectRequest{}

func (*UpdateDataObjectRequest) IsWriteRequest() bool {
	return true
}

// DataObject holds fields to be merged. It is marshalled as JSON.
func (r *UpdateDataObjectRequest) DataObject() any {
	return r.dataObject
}

// IfSeqNo is nil unless the update is conditional.
func (r *UpdateDataObjectRequest) IfSeqNo() *int64 {
	return r.ifSeqNo
}

// IfPrimaryTerm is nil unless the update is conditional.
func (r *UpdateDataObjectRequest) IfPrimaryTerm() *int64 {
	return r.ifPrimaryTerm
}

func (r *UpdateDataObjectRequest) RetryOnConflict() int {
	return r.retryOnConflict
}

type UpdateDataObjectRequestBuilder struct {
	req UpdateDataObjectRequest
}

func NewUpdateDataObjectRequest() *UpdateDataObjectRequestBuilder {
	return &UpdateDataObjectRequestBuilder{}
}

func (b *UpdateDataObjectRequestBuilder) Index(index string) *UpdateDataObjectRequestBuilder {
	b.req.index = index
	return b
}

func (b *UpdateDataObjectRequestBuilder) Id(id string) *UpdateDataObjectRequestBuilder {
	b.req.id = id
	return b
}

func (b *UpdateDataObjectRequestBuilder) TenantId(tenantId string) *UpdateDataObjectRequestBuilder {
	b.req.tenantId = tenantId
	return b
}

func (b *UpdateDataObjectRequestBuilder) DataObject(obj any) *UpdateDataObjectRequestBuilder {
	b.req.dataObject = obj
	return b
}

func (b *UpdateDataObjectRequestBuilder) IfSeqNo(seqNo int64) *UpdateDataObjectRequestBuilder {
	b.req.ifSeqNo = &seqNo
	return b
}

func (b *UpdateDataObjectRequestBuilder) IfPrimaryTerm(term int64) *UpdateDataObjectRequestBuilder {
	b.req.ifPrimaryTerm = &term
	return b
}

func (b *UpdateDataObjectRequestBuilder) RetryOnConflict(n int) *UpdateDataObjectRequestBuilder {
	b.req.retryOnConflict = n
	return b
}

func (b *UpdateDataObjectRequestBuilder) Build() *UpdateDataObjectRequest {
	req := b.req
	return &req
}

// DeleteDataObjectRequest deletes a document.
type DeleteDataObjectRequest struct {
	baseRequest
}

var _ DataObjectRequest = &DeleteDataObjectRequest{}

func (*DeleteDataObjectRequest) IsWriteRequest() bool {
	return true
}

type DeleteDataObjectRequestBuilder struct {
	req DeleteDataObjectRequest
}

func NewDeleteDataObjectRequest() *DeleteDataObjectRequestBuilder {
	return &DeleteDataObjectRequestBuilder{}
}

func (b *DeleteDataObjectRequestBuilder) Index(index string) *DeleteDataObjectRequestBuilder {
	b.req.index = index
	return b
}

func (b *DeleteDataObjectRequestBuilder) Id(id string) *DeleteDataObjectRequestBuilder {
	b.req.id = id
	return b
}

func (b *DeleteDataObjectRequestBuilder) TenantId(tenantId string) *DeleteDataObjectRequestBuilder {
	b.req.tenantId = tenantId
	return b
}

func (b *DeleteDataObjectRequestBuilder) Build() *DeleteDataObjectRequest {
	req := b.req
	return &req
}

// SearchDataObjectRequest searches documents over indices.
type SearchDataObjectRequest struct {
	indices      []string
	tenantId     string
	searchSource *SearchSource
}

func (r *SearchDataObjectRequest) Indices() []string {
	return append([]string{}, r.indices...)
}

func (r *SearchDataObjectRequest) TenantId() string {
	return r.tenantId
}

// SearchSource can be nil, which means match-all.
func (r *SearchDataObjectRequest) SearchSource() *SearchSource {
	return r.searchSource
}

type SearchDataObjectRequestBuilder struct {
	req SearchDataObjectRequest
}

func NewSearchDataObjectRequest() *SearchDataObjectRequestBuilder {
	return &SearchDataObjectRequestBuilder{}
}

func (b *SearchDataObjectRequestBuilder) Indices(indices ...string) *SearchDataObjectRequestBuilder {
	b.req.indices = append([]string{}, indices...)
	return b
}

func (b *SearchDataObjectRequestBuilder) TenantId(tenantId string) *SearchDataObjectRequestBuilder {
	b.req.tenantId = tenantId
	return b
}

func (b *SearchDataObjectRequestBuilder) SearchSource(source *SearchSource) *SearchDataObjectRequestBuilder {
	b.req.searchSource = source
	return b
}

func (b *SearchDataObjectRequestBuilder) Build() *SearchDataObjectRequest {
	req := b.req
	return &req
}

// SourceOf converts a data object into a JSON document.
func SourceOf(dataObject any) (map[string]any, error) {
	if dataObject == nil {
		return nil, NewIllegalArgumentError("data object is required")
	}
	if m, ok := dataObject.(map[string]any); ok {
		return m, nil
	}
	raw, err := json.Marshal(dataObject)
	if err != nil {
		return nil, err
	}
	source := map[string]any{}
	if err := json.Unmarshal(raw, &source); err != nil {
		return nil, NewIllegalArgumentError("data object should be a JSON object: %s", err)
	}
	return source, nil
}
