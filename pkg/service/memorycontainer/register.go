// Package memorycontainer serves memory container actions.
package memorycontainer

import (
	"context"

	"github.com/opst/mlcommons/pkg/action"
	actmc "github.com/opst/mlcommons/pkg/action/memorycontainer"
	"github.com/opst/mlcommons/pkg/cluster"
	mc "github.com/opst/mlcommons/pkg/domain/memorycontainer"
	"github.com/opst/mlcommons/pkg/sdk"
)

// Register registers handlers of memory container actions served by s.
func Register(reg *action.Registry, s *mc.Service) error {
	handlers := map[string]cluster.Handler{
		action.MemoryContainerCreate: action.Handle(actmc.ReadCreateRequest, func(ctx context.Context, req *actmc.CreateRequest) (*actmc.CreateResponse, error) {
			id, err := s.Create(ctx, req.Container)
			if err != nil {
				return nil, err
			}
			return &actmc.CreateResponse{MemoryContainerId: id, Status: sdk.ResultCreated}, nil
		}),
		action.MemoryContainerGet: action.Handle(actmc.ReadIdRequest, func(ctx context.Context, req *actmc.IdRequest) (*actmc.GetResponse, error) {
			m, err := s.Get(ctx, req.MemoryContainerId, req.TenantId)
			if err != nil {
				return nil, err
			}
			return &actmc.GetResponse{Container: m}, nil
		}),
		action.MemoryContainerUpdate: action.Handle(actmc.ReadUpdateRequest, func(ctx context.Context, req *actmc.UpdateRequest) (*actmc.WriteResponse, error) {
			r, err := s.Update(ctx, req.MemoryContainerId, req.TenantId, req.Update)
			if err != nil {
				return nil, err
			}
			return actmc.NewWriteResponse(r), nil
		}),
		action.MemoryContainerDelete: action.Handle(actmc.ReadIdRequest, func(ctx context.Context, req *actmc.IdRequest) (*actmc.WriteResponse, error) {
			r, err := s.Delete(ctx, req.MemoryContainerId, req.TenantId)
			if err != nil {
				return nil, err
			}
			return actmc.NewWriteResponse(r), nil
		}),
		action.MemoryContainerSearch: action.Handle(actmc.ReadSearchRequest, func(ctx context.Context, req *actmc.SearchRequest) (*actmc.SearchResponse, error) {
			found, total, err := s.Search(ctx, req.TenantId, req.Source())
			if err != nil {
				return nil, err
			}
			return &actmc.SearchResponse{Total: total, Containers: found}, nil
		}),
		action.MemoriesAdd: action.Handle(actmc.ReadAddMemoriesRequest, func(ctx context.Context, req *actmc.AddMemoriesRequest) (*mc.AddMemoriesResult, error) {
			return s.AddMemories(ctx, req.Input)
		}),
	}
	for name, h := range handlers {
		if err := reg.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}
