package controller

import (
	"context"
	"net/http"

	xe "github.com/opst/mlcommons/pkg/errors"
	"github.com/opst/mlcommons/pkg/sdk"
)

// Repository stores controllers of a family through sdk.Client.
type Repository struct {
	client *sdk.Client
	family Family
}

func NewRepository(client *sdk.Client, family Family) *Repository {
	return &Repository{client: client, family: family}
}

func (r *Repository) Family() Family {
	return r.family
}

// Get finds the controller for the model.
//
// When it is not found, it returns a StatusError with 404.
func (r *Repository) Get(ctx context.Context, modelId string, tenantId string) (*Controller, error) {
	resp, err := r.client.GetDataObject(ctx, sdk.NewGetDataObjectRequest().
		Index(r.family.Index()).
		Id(modelId).
		TenantId(tenantId).
		Build(),
	)
	if err != nil && !sdk.IsNotFound(err) {
		return nil, err
	}
	if err != nil || !resp.Found() {
		return nil, sdk.NewStatusError(
			http.StatusNotFound,
			"Failed to find model controller with the provided model ID: %s", modelId,
		)
	}

	c := &Controller{Family: r.family}
	if err := resp.DecodeSource(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Put indexes c with its model id, overwriting existing one.
func (r *Repository) Put(ctx context.Context, c *Controller) (*sdk.DocWriteResult, error) {
	c.Family = r.family
	resp, err := r.client.PutDataObject(ctx, sdk.NewPutDataObjectRequest().
		Index(r.family.Index()).
		Id(c.ModelId).
		TenantId(c.TenantId).
		OverwriteIfExists(true).
		DataObject(c).
		Build(),
	)
	if err != nil {
		return nil, err
	}
	result, err := resp.Parser().DocWriteResult()
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return result, nil
}

// Update writes c over the stored controller.
func (r *Repository) Update(ctx context.Context, c *Controller) (*sdk.DocWriteResult, error) {
	c.Family = r.family
	resp, err := r.client.UpdateDataObject(ctx, sdk.NewUpdateDataObjectRequest().
		Index(r.family.Index()).
		Id(c.ModelId).
		TenantId(c.TenantId).
		DataObject(c).
		Build(),
	)
	if err != nil {
		return nil, err
	}
	result, err := resp.Parser().DocWriteResult()
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return result, nil
}

func (r *Repository) Delete(ctx context.Context, modelId string, tenantId string) (*sdk.DocWriteResult, error) {
	resp, err := r.client.DeleteDataObject(ctx, sdk.NewDeleteDataObjectRequest().
		Index(r.family.Index()).
		Id(modelId).
		TenantId(tenantId).
		Build(),
	)
	if err != nil {
		return nil, err
	}
	result, err := resp.Parser().DocWriteResult()
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return result, nil
}
