// Storage-engine agnostic access to documents.
//
// A Client is the facade consumed by services. It is backed by a Delegate,
// which is implemented per storage engine (local database, remote OpenSearch, DynamoDB...).
//
// Each operation comes in three forms:
//
// - XxxAsyncOn(ctx, request, executor): the primary form. It never blocks the caller.
//
// - XxxAsync(ctx, request): same as above, on DefaultExecutor.
//
// - Xxx(ctx, request): blocks until done, and normalizes errors with UnwrapAndConvert.
package sdk

import (
	"context"
)

// Delegate is implemented by a storage engine.
//
// Implementations should fail futures with errors typed in this package
// (StatusError for "not found" or "conflict", for example) to let callers branch on them.
type Delegate interface {
	PutDataObjectAsync(ctx context.Context, req *PutDataObjectRequest, executor Executor, isMultiTenancyEnabled bool) *Future[*PutDataObjectResponse]
	GetDataObjectAsync(ctx context.Context, req *GetDataObjectRequest, executor Executor, isMultiTenancyEnabled bool) *Future[*GetDataObjectResponse]
	UpdateDataObjectAsync(ctx context.Context, req *UpdateDataObjectRequest, executor Executor, isMultiTenancyEnabled bool) *Future[*UpdateDataObjectResponse]
	DeleteDataObjectAsync(ctx context.Context, req *DeleteDataObjectRequest, executor Executor, isMultiTenancyEnabled bool) *Future[*DeleteDataObjectResponse]
	BulkDataObjectAsync(ctx context.Context, req *BulkDataObjectRequest, executor Executor, isMultiTenancyEnabled bool) *Future[*BulkDataObjectResponse]
	SearchDataObjectAsync(ctx context.Context, req *SearchDataObjectRequest, executor Executor, isMultiTenancyEnabled bool) *Future[*SearchDataObjectResponse]
}

// TenantRequiredMessage is the message for requests without tenant id under multi-tenancy.
const TenantRequiredMessage = "A tenant ID is required when multitenancy is enabled."

type Client struct {
	delegate     Delegate
	multiTenancy bool
	executor     Executor
}

type Option func(*Client) *Client

// WithMultiTenancy makes the client require tenant id on every request.
func WithMultiTenancy(enabled bool) Option {
	return func(c *Client) *Client {
		c.multiTenancy = enabled
		return c
	}
}

// WithDefaultExecutor replaces the executor used by XxxAsync and Xxx forms.
func WithDefaultExecutor(executor Executor) Option {
	return func(c *Client) *Client {
		c.executor = executor
		return c
	}
}

func NewClient(delegate Delegate, options ...Option) *Client {
	c := &Client{delegate: delegate}
	for _, opt := range options {
		c = opt(c)
	}
	return c
}

func (c *Client) IsMultiTenancyEnabled() bool {
	return c.multiTenancy
}

func (c *Client) Delegate() Delegate {
	return c.delegate
}

func (c *Client) defaultExecutor() Executor {
	if c.executor != nil {
		return c.executor
	}
	return DefaultExecutor()
}

func (c *Client) checkTenant(tenantId string) error {
	if c.multiTenancy && tenantId == "" {
		return NewIllegalArgumentError(TenantRequiredMessage)
	}
	return nil
}

func (c *Client) PutDataObjectAsyncOn(ctx context.Context, req *PutDataObjectRequest, executor Executor) *Future[*PutDataObjectResponse] {
	if err := c.checkTenant(req.TenantId()); err != nil {
		return Failed[*PutDataObjectResponse](err)
	}
	return c.delegate.PutDataObjectAsync(ctx, req, executor, c.multiTenancy)
}

func (c *Client) PutDataObjectAsync(ctx context.Context, req *PutDataObjectRequest) *Future[*PutDataObjectResponse] {
	return c.PutDataObjectAsyncOn(ctx, req, c.defaultExecutor())
}

func (c *Client) PutDataObject(ctx context.Context, req *PutDataObjectRequest) (*PutDataObjectResponse, error) {
	return await(ctx, c.PutDataObjectAsync(ctx, req))
}

func (c *Client) GetDataObjectAsyncOn(ctx context.Context, req *GetDataObjectRequest, executor Executor) *Future[*GetDataObjectResponse] {
	if err := c.checkTenant(req.TenantId()); err != nil {
		return Failed[*GetDataObjectResponse](err)
	}
	return c.delegate.GetDataObjectAsync(ctx, req, executor, c.multiTenancy)
}

func (c *Client) GetDataObjectAsync(ctx context.Context, req *GetDataObjectRequest) *Future[*GetDataObjectResponse] {
	return c.GetDataObjectAsyncOn(ctx, req, c.defaultExecutor())
}

func (c *Client) GetDataObject(ctx context.Context, req *GetDataObjectRequest) (*GetDataObjectResponse, error) {
	return await(ctx, c.GetDataObjectAsync(ctx, req))
}

func (c *Client) UpdateDataObjectAsyncOn(ctx context.Context, req *UpdateDataObjectRequest, executor Executor) *Future[*UpdateDataObjectResponse] {
	if err := c.checkTenant(req.TenantId()); err != nil {
		return Failed[*UpdateDataObjectResponse](err)
	}
	return c.delegate.UpdateDataObjectAsync(ctx, req, executor, c.multiTenancy)
}

func (c *Client) UpdateDataObjectAsync(ctx context.Context, req *UpdateDataObjectRequest) *Future[*UpdateDataObjectResponse] {
	return c.UpdateDataObjectAsyncOn(ctx, req, c.defaultExecutor())
}

func (c *Client) UpdateDataObject(ctx context.Context, req *UpdateDataObjectRequest) (*UpdateDataObjectResponse, error) {
	return await(ctx, c.UpdateDataObjectAsync(ctx, req))
}

func (c *Client) DeleteDataObjectAsyncOn(ctx context.Context, req *DeleteDataObjectRequest, executor Executor) *Future[*DeleteDataObjectResponse] {
	if err := c.checkTenant(req.TenantId()); err != nil {
		return Failed[*DeleteDataObjectResponse](err)
	}
	return c.delegate.DeleteDataObjectAsync(ctx, req, executor, c.multiTenancy)
}

func (c *Client) DeleteDataObjectAsync(ctx context.Context, req *DeleteDataObjectRequest) *Future[*DeleteDataObjectResponse] {
	return c.DeleteDataObjectAsyncOn(ctx, req, c.defaultExecutor())
}

func (c *Client) DeleteDataObject(ctx context.Context, req *DeleteDataObjectRequest) (*DeleteDataObjectResponse, error) {
	return await(ctx, c.DeleteDataObjectAsync(ctx, req))
}

func (c *Client) BulkDataObjectAsyncOn(ctx context.Context, req *BulkDataObjectRequest, executor Executor) *Future[*BulkDataObjectResponse] {
	for _, r := range req.requests {
		if err := c.checkTenant(r.TenantId()); err != nil {
			return Failed[*BulkDataObjectResponse](err)
		}
	}
	return c.delegate.BulkDataObjectAsync(ctx, req, executor, c.multiTenancy)
}

func (c *Client) BulkDataObjectAsync(ctx context.Context, req *BulkDataObjectRequest) *Future[*BulkDataObjectResponse] {
	return c.BulkDataObjectAsyncOn(ctx, req, c.defaultExecutor())
}

func (c *Client) BulkDataObject(ctx context.Context, req *BulkDataObjectRequest) (*BulkDataObjectResponse, error) {
	return await(ctx, c.BulkDataObjectAsync(ctx, req))
}

func (c *Client) SearchDataObjectAsyncOn(ctx context.Context, req *SearchDataObjectRequest, executor Executor) *Future[*SearchDataObjectResponse] {
	if err := c.checkTenant(req.TenantId()); err != nil {
		return Failed[*SearchDataObjectResponse](err)
	}
	return c.delegate.SearchDataObjectAsync(ctx, req, executor, c.multiTenancy)
}

func (c *Client) SearchDataObjectAsync(ctx context.Context, req *SearchDataObjectRequest) *Future[*SearchDataObjectResponse] {
	return c.SearchDataObjectAsyncOn(ctx, req, c.defaultExecutor())
}

func (c *Client) SearchDataObject(ctx context.Context, req *SearchDataObjectRequest) (*SearchDataObjectResponse, error) {
	return await(ctx, c.SearchDataObjectAsync(ctx, req))
}

func await[T any](ctx context.Context, f *Future[T]) (T, error) {
	value, err := f.Await(ctx)
	if err != nil {
		return *new(T), UnwrapAndConvert(err)
	}
	return value, nil
}
