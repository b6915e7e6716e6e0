package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/opst/mlcommons/pkg/sdk"
)

type CallLog[T any] []T

type Call[R any] struct {
	Request               R
	IsMultiTenancyEnabled bool
}

// Delegate is a mock of sdk.Delegate.
//
// Each method records its call, then calls Impl. It panics when Impl is not set.
type Delegate struct {
	mu   sync.Mutex
	Impl struct {
		Put    func(context.Context, *sdk.PutDataObjectRequest) (*sdk.PutDataObjectResponse, error)
		Get    func(context.Context, *sdk.GetDataObjectRequest) (*sdk.GetDataObjectResponse, error)
		Update func(context.Context, *sdk.UpdateDataObjectRequest) (*sdk.UpdateDataObjectResponse, error)
		Delete func(context.Context, *sdk.DeleteDataObjectRequest) (*sdk.DeleteDataObjectResponse, error)
		Bulk   func(context.Context, *sdk.BulkDataObjectRequest) (*sdk.BulkDataObjectResponse, error)
		Search func(context.Context, *sdk.SearchDataObjectRequest) (*sdk.SearchDataObjectResponse, error)
	}
	Calls struct {
		Put    CallLog[Call[*sdk.PutDataObjectRequest]]
		Get    CallLog[Call[*sdk.GetDataObjectRequest]]
		Update CallLog[Call[*sdk.UpdateDataObjectRequest]]
		Delete CallLog[Call[*sdk.DeleteDataObjectRequest]]
		Bulk   CallLog[Call[*sdk.BulkDataObjectRequest]]
		Search CallLog[Call[*sdk.SearchDataObjectRequest]]
	}
}

var _ sdk.Delegate = &Delegate{}

func New() *Delegate {
	return &Delegate{}
}

func (m *Delegate) PutDataObjectAsync(ctx context.Context, req *sdk.PutDataObjectRequest, executor sdk.Executor, mt bool) *sdk.Future[*sdk.PutDataObjectResponse] {
	m.mu.Lock()
	m.Calls.Put = append(m.Calls.Put, Call[*sdk.PutDataObjectRequest]{req, mt})
	impl := m.Impl.Put
	m.mu.Unlock()
	if impl == nil {
		panic(errors.New("should not be called"))
	}
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.PutDataObjectResponse, error) { return impl(ctx, req) })
}

func (m *Delegate) GetDataObjectAsync(ctx context.Context, req *sdk.GetDataObjectRequest, executor sdk.Executor, mt bool) *sdk.Future[*sdk.GetDataObjectResponse] {
	m.mu.Lock()
	m.Calls.Get = append(m.Calls.Get, Call[*sdk.GetDataObjectRequest]{req, mt})
	impl := m.Impl.Get
	m.mu.Unlock()
	if impl == nil {
		panic(errors.New("should not be called"))
	}
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.GetDataObjectResponse, error) { return impl(ctx, req) })
}

func (m *Delegate) UpdateDataObjectAsync(ctx context.Context, req *sdk.UpdateDataObjectRequest, executor sdk.Executor, mt bool) *sdk.Future[*sdk.UpdateDataObjectResponse] {
	m.mu.Lock()
	m.Calls.Update = append(m.Calls.Update, Call[*sdk.UpdateDataObjectRequest]{req, mt})
	impl := m.Impl.Update
	m.mu.Unlock()
	if impl == nil {
		panic(errors.New("should not be called"))
	}
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.UpdateDataObjectResponse, error) { return impl(ctx, req) })
}

func (m *Delegate) DeleteDataObjectAsync(ctx context.Context, req *sdk.DeleteDataObjectRequest, executor sdk.Executor, mt bool) *sdk.Future[*sdk.DeleteDataObjectResponse] {
	m.mu.Lock()
	m.Calls.Delete = append(m.Calls.Delete, Call[*sdk.DeleteDataObjectRequest]{req, mt})
	impl := m.Impl.Delete
	m.mu.Unlock()
	if impl == nil {
		panic(errors.New("should not be called"))
	}
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.DeleteDataObjectResponse, error) { return impl(ctx, req) })
}

func (m *Delegate) BulkDataObjectAsync(ctx context.Context, req *sdk.BulkDataObjectRequest, executor sdk.Executor, mt bool) *sdk.Future[*sdk.BulkDataObjectResponse] {
	m.mu.Lock()
	m.Calls.Bulk = append(m.Calls.Bulk, Call[*sdk.BulkDataObjectRequest]{req, mt})
	impl := m.Impl.Bulk
	m.mu.Unlock()
	if impl == nil {
		panic(errors.New("should not be called"))
	}
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.BulkDataObjectResponse, error) { return impl(ctx, req) })
}

func (m *Delegate) SearchDataObjectAsync(ctx context.Context, req *sdk.SearchDataObjectRequest, executor sdk.Executor, mt bool) *sdk.Future[*sdk.SearchDataObjectResponse] {
	m.mu.Lock()
	m.Calls.Search = append(m.Calls.Search, Call[*sdk.SearchDataObjectRequest]{req, mt})
	impl := m.Impl.Search
	m.mu.Unlock()
	if impl == nil {
		panic(errors.New("should not be called"))
	}
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.SearchDataObjectResponse, error) { return impl(ctx, req) })
}
