package controller

import (
	"context"
	"errors"

	"github.com/opst/mlcommons/pkg/action"
	actionctrl "github.com/opst/mlcommons/pkg/action/controller"
	"github.com/opst/mlcommons/pkg/cluster"
	"github.com/opst/mlcommons/pkg/sdk"
)

// StatusSuccess is the status reported by a node which (un)deployed the controller.
const StatusSuccess = "success"

func (s *Service) nodeAction(op actionctrl.Operation) string {
	if op == actionctrl.Undeploy {
		return action.NodeAction(s.names.Undeploy)
	}
	return action.NodeAction(s.names.Deploy)
}

// Dispatch sends req to its target nodes, and gathers their responses.
//
// Failures of nodes are reported in the response, not as an error.
func (s *Service) Dispatch(ctx context.Context, req *actionctrl.NodesRequest) (*actionctrl.NodesResponse, error) {
	if req.Family != s.family {
		return nil, sdk.NewIllegalArgumentError("request for %s is sent to %s", req.Family, s.family)
	}

	nodeReq := &actionctrl.NodeRequest{Nodes: req}
	name := s.nodeAction(req.Operation)

	var results []cluster.NodeResult[*actionctrl.NodeResponse]
	var failures []*cluster.FailedNodeError
	if req.ConcreteNodes != nil {
		results, failures = cluster.BroadcastTo(ctx, s.broadcaster, name, req.ConcreteNodes, nodeReq, actionctrl.ReadNodeResponse)
	} else {
		results, failures = cluster.Broadcast(ctx, s.broadcaster, name, req.NodeIds, nodeReq, actionctrl.ReadNodeResponse)
	}
	for _, f := range failures {
		s.logger.Warnf("%s of %s for model %s failed on node %s: %s", req.Operation, s.family, req.ModelId, f.NodeId, f.Cause)
	}
	return actionctrl.NewNodesResponse(s.broadcaster.ClusterName(), results, failures), nil
}

// DeployOnNode installs limiters of the controller into the local model cache.
//
// When the model is not deployed on this node, it reports nothing.
// Otherwise it reports "success" or why it failed, for the model.
func (s *Service) DeployOnNode(ctx context.Context, req *actionctrl.NodeRequest) (*actionctrl.NodeResponse, error) {
	resp := &actionctrl.NodeResponse{
		Node:   s.broadcaster.State().Nodes().LocalNode(),
		Status: map[string]string{},
	}
	modelId := req.Nodes.ModelId
	if !s.cache.IsDeployed(modelId) {
		return resp, nil
	}

	c, err := s.controllers.Get(ctx, modelId, req.Nodes.TenantId)
	if err == nil {
		_, err = s.cache.SetController(c)
	}
	if err != nil {
		s.logger.Errorf("failed to deploy %s for model %s: %s", s.family, modelId, err)
		resp.Status[modelId] = err.Error()
		var statusErr *sdk.StatusError
		if errors.As(err, &statusErr) {
			resp.Status[modelId] = statusErr.Message
		}
		return resp, nil
	}
	resp.Status[modelId] = StatusSuccess
	return resp, nil
}

// UndeployOnNode removes limiters of the model from the local model cache.
//
// When the model is not deployed on this node, it reports nothing.
func (s *Service) UndeployOnNode(_ context.Context, req *actionctrl.NodeRequest) (*actionctrl.NodeResponse, error) {
	resp := &actionctrl.NodeResponse{
		Node:   s.broadcaster.State().Nodes().LocalNode(),
		Status: map[string]string{},
	}
	if s.cache.RemoveController(req.Nodes.ModelId) {
		resp.Status[req.Nodes.ModelId] = StatusSuccess
	}
	return resp, nil
}

// Register registers handlers of all actions of the family.
func (s *Service) Register(reg *action.Registry) error {
	handlers := map[string]cluster.Handler{
		s.names.Create: action.Handle(actionctrl.ReadControllerRequest, func(ctx context.Context, req *actionctrl.ControllerRequest) (*actionctrl.CreateResponse, error) {
			return s.Create(ctx, req.Controller)
		}),
		s.names.Get: action.Handle(actionctrl.ReadModelIdRequest, s.Get),
		s.names.Update: action.Handle(actionctrl.ReadControllerRequest, func(ctx context.Context, req *actionctrl.ControllerRequest) (*actionctrl.WriteResponse, error) {
			return s.Update(ctx, req.Controller)
		}),
		s.names.Delete:   action.Handle(actionctrl.ReadModelIdRequest, s.Delete),
		s.names.Deploy:   action.Handle(actionctrl.ReadNodesRequest, s.Dispatch),
		s.names.Undeploy: action.Handle(actionctrl.ReadNodesRequest, s.Dispatch),

		action.NodeAction(s.names.Deploy):   action.Handle(actionctrl.ReadNodeRequest, s.DeployOnNode),
		action.NodeAction(s.names.Undeploy): action.Handle(actionctrl.ReadNodeRequest, s.UndeployOnNode),
	}
	for name, h := range handlers {
		if err := reg.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}
