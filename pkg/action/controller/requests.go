package controller

import (
	"fmt"

	ctrl "github.com/opst/mlcommons/pkg/domain/controller"
	"github.com/opst/mlcommons/pkg/sdk"
	"github.com/opst/mlcommons/pkg/wire"
)

func readFamily(in *wire.StreamInput) (ctrl.Family, error) {
	f, err := in.ReadVInt()
	if err != nil {
		return 0, err
	}
	if !ctrl.Family(f).IsValid() {
		return 0, fmt.Errorf("%w: unknown controller family %d", wire.ErrMalformed, f)
	}
	return ctrl.Family(f), nil
}

// ControllerRequest carries a controller to be created or updated.
type ControllerRequest struct {
	Controller *ctrl.Controller
}

func (r *ControllerRequest) WriteTo(out *wire.StreamOutput) error {
	out.WriteVInt(int32(r.Controller.Family))
	return r.Controller.WriteTo(out)
}

func ReadControllerRequest(in *wire.StreamInput) (*ControllerRequest, error) {
	f, err := readFamily(in)
	if err != nil {
		return nil, err
	}
	c, err := ctrl.ReadController(f)(in)
	if err != nil {
		return nil, err
	}
	return &ControllerRequest{Controller: c}, nil
}

// ModelIdRequest points a controller by its model id, to get or delete it.
type ModelIdRequest struct {
	Family   ctrl.Family
	ModelId  string
	TenantId string
}

// WriteTo writes r. Tenant id is written only for version 3.1.0 or later.
func (r *ModelIdRequest) WriteTo(out *wire.StreamOutput) error {
	out.WriteVInt(int32(r.Family))
	out.WriteString(r.ModelId)
	if out.Version().OnOrAfter(wire.V_3_1_0) {
		out.WriteOptionalString(r.TenantId)
	}
	return nil
}

func ReadModelIdRequest(in *wire.StreamInput) (*ModelIdRequest, error) {
	f, err := readFamily(in)
	if err != nil {
		return nil, err
	}
	modelId, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	r := &ModelIdRequest{Family: f, ModelId: modelId}
	if in.Version().OnOrAfter(wire.V_3_1_0) {
		tenantId, err := in.ReadOptionalString()
		if err != nil {
			return nil, err
		}
		r.TenantId = tenantId
	}
	return r, nil
}

// CreateResponse is the result of creating a controller.
type CreateResponse struct {
	ModelId string `json:"model_id"`
	Status  string `json:"status"`
}

func (r *CreateResponse) WriteTo(out *wire.StreamOutput) error {
	out.WriteString(r.ModelId)
	out.WriteString(r.Status)
	return nil
}

func ReadCreateResponse(in *wire.StreamInput) (*CreateResponse, error) {
	modelId, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	status, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	return &CreateResponse{ModelId: modelId, Status: status}, nil
}

// GetResponse carries a found controller.
type GetResponse struct {
	Controller *ctrl.Controller
}

func (r *GetResponse) WriteTo(out *wire.StreamOutput) error {
	out.WriteVInt(int32(r.Controller.Family))
	return r.Controller.WriteTo(out)
}

func (r *GetResponse) MarshalJSON() ([]byte, error) {
	return r.Controller.MarshalJSON()
}

func ReadGetResponse(in *wire.StreamInput) (*GetResponse, error) {
	f, err := readFamily(in)
	if err != nil {
		return nil, err
	}
	c, err := ctrl.ReadController(f)(in)
	if err != nil {
		return nil, err
	}
	return &GetResponse{Controller: c}, nil
}

// WriteResponse is the result of updating or deleting a controller.
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
	index, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	id, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	result, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	return &WriteResponse{Index: index, Id: id, Result: result}, nil
}
