// Package memorycontainer is requests and responses of memory container actions.
package memorycontainer

import (
	"maps"
	"slices"

	mc "github.com/opst/mlcommons/pkg/domain/memorycontainer"
	"github.com/opst/mlcommons/pkg/sdk"
	"github.com/opst/mlcommons/pkg/wire"
)

type CreateRequest struct {
	Container *mc.MemoryContainer
}

func (r *CreateRequest) WriteTo(out *wire.StreamOutput) error {
	return r.Container.WriteTo(out)
}

func ReadCreateRequest(in *wire.StreamInput) (*CreateRequest, error) {
	m, err := mc.ReadMemoryContainer(in)
	if err != nil {
		return nil, err
	}
	return &CreateRequest{Container: m}, nil
}

type CreateResponse struct {
	MemoryContainerId string `json:"memory_container_id"`
	Status            string `json:"status"`
}

func (r *CreateResponse) WriteTo(out *wire.StreamOutput) error {
	out.WriteString(r.MemoryContainerId)
	out.WriteString(r.Status)
	return nil
}

func ReadCreateResponse(in *wire.StreamInput) (*CreateResponse, error) {
	id, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	status, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	return &CreateResponse{MemoryContainerId: id, Status: status}, nil
}

// IdRequest points a container, to get or delete it.
type IdRequest struct {
	MemoryContainerId string
	TenantId          string
}

// WriteTo writes r. Tenant id is written only for version 3.1.0 or later.
func (r *IdRequest) WriteTo(out *wire.StreamOutput) error {
	out.WriteString(r.MemoryContainerId)
	if out.Version().OnOrAfter(wire.V_3_1_0) {
		out.WriteOptionalString(r.TenantId)
	}
	return nil
}

func ReadIdRequest(in *wire.StreamInput) (*IdRequest, error) {
	id, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	r := &IdRequest{MemoryContainerId: id}
	if in.Version().OnOrAfter(wire.V_3_1_0) {
		if r.TenantId, err = in.ReadOptionalString(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

type GetResponse struct {
	Container *mc.MemoryContainer
}

func (r *GetResponse) WriteTo(out *wire.StreamOutput) error {
	return r.Container.WriteTo(out)
}

func (r *GetResponse) MarshalJSON() ([]byte, error) {
	return r.Container.MarshalJSON()
}

func ReadGetResponse(in *wire.StreamInput) (*GetResponse, error) {
	m, err := mc.ReadMemoryContainer(in)
	if err != nil {
		return nil, err
	}
	return &GetResponse{Container: m}, nil
}

// UpdateRequest is a partial change of a container.
type UpdateRequest struct {
	MemoryContainerId string
	TenantId          string
	Update            mc.UpdateInput
}

func writeOptionalPointer(out *wire.StreamOutput, s *string) {
	out.WriteBool(s != nil)
	if s != nil {
		out.WriteString(*s)
	}
}

func readOptionalPointer(in *wire.StreamInput) (*string, error) {
	present, err := in.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	s, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *UpdateRequest) WriteTo(out *wire.StreamOutput) error {
	out.WriteString(r.MemoryContainerId)
	writeOptionalPointer(out, r.Update.Name)
	writeOptionalPointer(out, r.Update.Description)
	if err := out.WriteOptional(r.Update.Configuration != nil, r.Update.Configuration); err != nil {
		return err
	}
	if out.Version().OnOrAfter(wire.V_3_1_0) {
		out.WriteOptionalString(r.TenantId)
	}
	return nil
}

func ReadUpdateRequest(in *wire.StreamInput) (*UpdateRequest, error) {
	id, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	r := &UpdateRequest{MemoryContainerId: id}
	if r.Update.Name, err = readOptionalPointer(in); err != nil {
		return nil, err
	}
	if r.Update.Description, err = readOptionalPointer(in); err != nil {
		return nil, err
	}
	hasConfig, err := in.ReadBool()
	if err != nil {
		return nil, err
	}
	if hasConfig {
		if r.Update.Configuration, err = mc.ReadConfiguration(in); err != nil {
			return nil, err
		}
	}
	if in.Version().OnOrAfter(wire.V_3_1_0) {
		if r.TenantId, err = in.ReadOptionalString(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// WriteResponse is the result of updating or deleting a container.
type WriteResponse struct {
	Index  string `json:"_index"`
	Id     string `json:"_id"`
	Result string `json:"result"`
}

func NewWriteResponse(r *sdk.DocWriteResult) *WriteResponse {
	return &WriteResponse{Index: r.Index, Id: r.Id, Result: r.Result}
}

func (r *WriteResponse) WriteTo(out *wire.StreamOutput) error {
	out.WriteString(r.Index)
	out.WriteString(r.Id)
	out.WriteString(r.Result)
	return nil
}

func ReadWriteResponse(in *wire.StreamInput) (*WriteResponse, error) {
	r := &WriteResponse{}
	var err error
	if r.Index, err = in.ReadString(); err != nil {
		return nil, err
	}
	if r.Id, err = in.ReadString(); err != nil {
		return nil, err
	}
	if r.Result, err = in.ReadString(); err != nil {
		return nil, err
	}
	return r, nil
}

// SearchRequest finds containers whose fields equal to Terms.
type SearchRequest struct {
	TenantId   string
	Terms      map[string]string
	From       int
	Size       int
	SortField  string
	Descending bool
}

// Source builds a search source of r.
func (r *SearchRequest) Source() *sdk.SearchSource {
	s := &sdk.SearchSource{From: r.From, Size: r.Size}
	if len(r.Terms) != 0 {
		q := sdk.BoolQuery{}
		for _, field := range slices.Sorted(maps.Keys(r.Terms)) {
			q.Filter = append(q.Filter, sdk.TermQuery{Field: field, Value: r.Terms[field]})
		}
		s.Query = q
	}
	if r.SortField != "" {
		s.Sort = []sdk.SortField{{Field: r.SortField, Descending: r.Descending}}
	}
	return s
}

func (r *SearchRequest) WriteTo(out *wire.StreamOutput) error {
	out.WriteOptionalStringMap(r.Terms)
	out.WriteVInt(int32(r.From))
	out.WriteVInt(int32(r.Size))
	out.WriteOptionalString(r.SortField)
	out.WriteBool(r.Descending)
	if out.Version().OnOrAfter(wire.V_3_1_0) {
		out.WriteOptionalString(r.TenantId)
	}
	return nil
}

func ReadSearchRequest(in *wire.StreamInput) (*SearchRequest, error) {
	r := &SearchRequest{}
	var err error
	if r.Terms, err = in.ReadOptionalStringMap(); err != nil {
		return nil, err
	}
	from, err := in.ReadVInt()
	if err != nil {
		return nil, err
	}
	size, err := in.ReadVInt()
	if err != nil {
		return nil, err
	}
	r.From, r.Size = int(from), int(size)
	if r.SortField, err = in.ReadOptionalString(); err != nil {
		return nil, err
	}
	if r.Descending, err = in.ReadBool(); err != nil {
		return nil, err
	}
	if in.Version().OnOrAfter(wire.V_3_1_0) {
		if r.TenantId, err = in.ReadOptionalString(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

type SearchResponse struct {
	Total      int64
	Containers []*mc.MemoryContainer
}

func (r *SearchResponse) WriteTo(out *wire.StreamOutput) error {
	out.WriteVLong(r.Total)
	return wire.WriteList(out, r.Containers)
}

func ReadSearchResponse(in *wire.StreamInput) (*SearchResponse, error) {
	total, err := in.ReadVLong()
	if err != nil {
		return nil, err
	}
	containers, err := wire.ReadList(in, mc.ReadMemoryContainer)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Total: total, Containers: containers}, nil
}

type AddMemoriesRequest struct {
	Input *mc.AddMemoriesInput
}

func (r *AddMemoriesRequest) WriteTo(out *wire.StreamOutput) error {
	return r.Input.WriteTo(out)
}

func ReadAddMemoriesRequest(in *wire.StreamInput) (*AddMemoriesRequest, error) {
	input, err := mc.ReadAddMemoriesInput(in)
	if err != nil {
		return nil, err
	}
	return &AddMemoriesRequest{Input: input}, nil
}
