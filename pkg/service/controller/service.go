// Package controller manages controllers of models: it stores them, and deploys
// their rate limiters onto nodes serving the models.
package controller

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	actionctrl "github.com/opst/mlcommons/pkg/action/controller"
	"github.com/opst/mlcommons/pkg/cluster"
	ctrl "github.com/opst/mlcommons/pkg/domain/controller"
	"github.com/opst/mlcommons/pkg/domain/model"
	"github.com/opst/mlcommons/pkg/domain/modelcache"
	"github.com/opst/mlcommons/pkg/sdk"
	"github.com/opst/mlcommons/pkg/tracing"
)

// Service serves actions on controllers of one family.
type Service struct {
	family      ctrl.Family
	names       actionctrl.Names
	controllers *ctrl.Repository
	models      *model.Repository
	broadcaster *cluster.Broadcaster
	cache       *modelcache.Cache
	logger      echo.Logger
	tracer      *tracing.Tracer
}

type Option func(*Service) *Service

func WithLogger(logger echo.Logger) Option {
	return func(s *Service) *Service {
		s.logger = logger
		return s
	}
}

func WithTracer(tracer *tracing.Tracer) Option {
	return func(s *Service) *Service {
		s.tracer = tracer
		return s
	}
}

// New creates a Service.
//
// Controllers and models are stored through client.
// cache is the model cache of the local node, updated on node-level deploy and undeploy.
func New(
	family ctrl.Family,
	client *sdk.Client,
	broadcaster *cluster.Broadcaster,
	cache *modelcache.Cache,
	options ...Option,
) *Service {
	s := &Service{
		family:      family,
		names:       actionctrl.NamesOf(family),
		controllers: ctrl.NewRepository(client, family),
		models:      model.NewRepository(client),
		broadcaster: broadcaster,
		cache:       cache,
		logger:      log.New(strings.ReplaceAll(family.String(), " ", "_")),
		tracer:      tracing.Noop(),
	}
	for _, opt := range options {
		s = opt(s)
	}
	return s
}

func (s *Service) Family() ctrl.Family {
	return s.family
}

func (s *Service) Names() actionctrl.Names {
	return s.names
}

// nodeList formats node ids as "[a, b]".
func nodeList(ids []string) string {
	return "[" + strings.Join(ids, ", ") + "]"
}

func (s *Service) startSpan(ctx context.Context, op string, modelId string) (context.Context, func(error)) {
	ctx, span := s.tracer.StartSpan(
		ctx,
		strings.ReplaceAll(s.family.String(), " ", "_")+"."+op,
		map[string]string{"model_id": modelId},
	)
	return ctx, func(err error) { tracing.EndSpan(span, err) }
}

// modelFor finds the model owning a controller to be created or updated.
func (s *Service) modelFor(ctx context.Context, modelId string, tenantId string) (*model.Model, error) {
	m, err := s.models.Get(ctx, modelId, tenantId)
	if sdk.IsNotFound(err) {
		return nil, sdk.NewStatusError(
			http.StatusNotFound,
			"Failed to find model to create the corresponding model controller with the provided model ID: %s", modelId,
		)
	} else if err != nil {
		return nil, err
	}
	if !m.Algorithm.SupportsController() {
		return nil, sdk.NewStatusError(
			http.StatusForbidden,
			"Creating model controller on this operation on the function category %s is not supported.", m.Algorithm,
		)
	}
	return m, nil
}

// Create stores the controller of a model, and deploys it onto worker nodes of the model.
//
// The model must exist, must be of an algorithm supporting controllers, and must not be in DEPLOYING.
func (s *Service) Create(ctx context.Context, c *ctrl.Controller) (_ *actionctrl.CreateResponse, err error) {
	ctx, end := s.startSpan(ctx, "create", c.ModelId)
	defer func() { end(err) }()

	m, err := s.modelFor(ctx, c.ModelId, c.TenantId)
	if err != nil {
		return nil, err
	}
	if m.State == model.Deploying {
		s.logger.Errorf("Failed to create a model controller during its corresponding model in DEPLOYING state. Model ID: %s", c.ModelId)
		return nil, sdk.NewStatusError(
			http.StatusConflict,
			"Creating a model controller during its corresponding model in DEPLOYING state is not allowed, "+
				"please either create the model controller after it is deployed or before deploying it. Model ID: %s",
			c.ModelId,
		)
	}

	result, err := s.controllers.Put(ctx, c)
	if err != nil {
		return nil, err
	}
	s.logger.Infof("Model controller for model id %s saved into index, result: %s", c.ModelId, result.Result)
	if result.Result == sdk.ResultCreated {
		if err := s.models.SetControllerEnabled(ctx, c.ModelId, c.TenantId, true); err != nil {
			s.logger.Warnf("failed to mark model %s as controller-enabled: %s", c.ModelId, err)
		}
	}

	resp := &actionctrl.CreateResponse{ModelId: c.ModelId, Status: result.Result}
	workers := m.WorkerNodes()
	if len(workers) == 0 {
		return resp, nil
	}

	s.logger.Infof("Model %s is deployed. Start to deploy the model controller into cache.", c.ModelId)
	nodes, err := s.Dispatch(ctx, &actionctrl.NodesRequest{
		Operation: actionctrl.Deploy,
		Family:    s.family,
		ModelId:   c.ModelId,
		TenantId:  c.TenantId,
		NodeIds:   workers,
	})
	if err != nil {
		return nil, err
	}
	if nodes.HasFailures() {
		msg := fmt.Sprintf(
			"Successfully create model controller index with model ID %s but deploy model controller to cache was failed on following nodes %s, please retry.",
			c.ModelId, nodeList(nodes.FailedNodeIds()),
		)
		s.logger.Error(msg)
		return nil, sdk.NewStatusError(http.StatusInternalServerError, "%s", msg)
	}
	s.logger.Infof("Successfully create model controller and deploy it into cache with model ID %s", c.ModelId)
	return resp, nil
}

// Get finds the controller of a model.
func (s *Service) Get(ctx context.Context, req *actionctrl.ModelIdRequest) (_ *actionctrl.GetResponse, err error) {
	ctx, end := s.startSpan(ctx, "get", req.ModelId)
	defer func() { end(err) }()

	c, err := s.controllers.Get(ctx, req.ModelId, req.TenantId)
	if err != nil {
		return nil, err
	}
	if _, err := s.models.Get(ctx, req.ModelId, req.TenantId); sdk.IsNotFound(err) {
		return nil, sdk.NewStatusError(
			http.StatusNotFound,
			"Failed to find model to get the corresponding model controller with the provided model ID: %s", req.ModelId,
		)
	} else if err != nil {
		return nil, err
	}
	return &actionctrl.GetResponse{Controller: c}, nil
}

// Update merges update into the stored controller.
//
// When the merge changes some valid limiter and the model has worker nodes, the controller is deployed again.
func (s *Service) Update(ctx context.Context, update *ctrl.Controller) (_ *actionctrl.WriteResponse, err error) {
	ctx, end := s.startSpan(ctx, "update", update.ModelId)
	defer func() { end(err) }()

	m, err := s.modelFor(ctx, update.ModelId, update.TenantId)
	if err != nil {
		return nil, err
	}

	current, err := s.controllers.Get(ctx, update.ModelId, update.TenantId)
	if err != nil {
		if sdk.IsNotFound(err) && !m.ControllerEnabled() {
			s.logger.Errorf("Model controller haven't been created for the model: %s", update.ModelId)
			return nil, sdk.NewStatusError(
				http.StatusConflict,
				"Model controller haven't been created for the model. Consider calling create model controller api instead. Model ID: %s",
				update.ModelId,
			)
		}
		return nil, err
	}

	deployRequired := current.IsDeployRequiredAfterUpdate(update)
	current.Update(update)
	current.TenantId = update.TenantId

	result, err := s.controllers.Update(ctx, current)
	if err != nil {
		return nil, err
	}
	resp := actionctrl.NewWriteResponse(result)
	if result.Result != sdk.ResultUpdated {
		s.logger.Warnf(
			"Update model controller for model %s got a result status other than update, result status: %s",
			update.ModelId, result.Result,
		)
		return resp, nil
	}

	workers := m.WorkerNodes()
	if len(workers) == 0 || !deployRequired {
		return resp, nil
	}

	s.logger.Infof(
		"Model %s is deployed and the user rate limiter config is constructable. Start to deploy the model controller into cache.",
		update.ModelId,
	)
	nodes, err := s.Dispatch(ctx, &actionctrl.NodesRequest{
		Operation: actionctrl.Deploy,
		Family:    s.family,
		ModelId:   update.ModelId,
		TenantId:  update.TenantId,
		NodeIds:   workers,
	})
	if err != nil {
		return nil, err
	}
	if nodes.HasFailures() {
		msg := fmt.Sprintf(
			"Successfully update model controller index with model ID %s but deploy model controller to cache was failed on following nodes %s, please retry.",
			update.ModelId, nodeList(nodes.FailedNodeIds()),
		)
		s.logger.Error(msg)
		return nil, sdk.NewStatusError(http.StatusInternalServerError, "%s", msg)
	}
	return resp, nil
}

// Delete removes the controller of a model.
//
// When the model has worker nodes or its document is missing, the controller is undeployed from all nodes
// before deletion, and the deletion is aborted if some node failed.
// A missing model does not prevent the deletion.
func (s *Service) Delete(ctx context.Context, req *actionctrl.ModelIdRequest) (_ *actionctrl.WriteResponse, err error) {
	ctx, end := s.startSpan(ctx, "delete", req.ModelId)
	defer func() { end(err) }()

	m, err := s.models.Get(ctx, req.ModelId, req.TenantId)
	if sdk.IsNotFound(err) {
		s.logger.Warnf(
			"Failed to find corresponding model during deleting the model controller. Now trying to delete the model controller alone. Model ID: %s",
			req.ModelId,
		)
		m = nil
	} else if err != nil {
		return nil, err
	}

	if _, err := s.controllers.Get(ctx, req.ModelId, req.TenantId); err != nil {
		return nil, err
	}

	// nodes may still hold a model whose document is gone.
	if m == nil || len(m.WorkerNodes()) != 0 {
		s.logger.Infof("Model %s may be deployed, undeploy model controller before deleting it.", req.ModelId)
		nodes, err := s.Dispatch(ctx, &actionctrl.NodesRequest{
			Operation:     actionctrl.Undeploy,
			Family:        s.family,
			ModelId:       req.ModelId,
			TenantId:      req.TenantId,
			ConcreteNodes: s.broadcaster.State().Nodes().Nodes(),
		})
		if err != nil {
			return nil, err
		}
		if nodes.HasFailures() {
			msg := fmt.Sprintf(
				"Failed to undeploy model controller with model ID %s on following nodes %s, deletion is aborted. "+
					"Please retry or undeploy the model manually and then perform the deletion.",
				req.ModelId, nodeList(nodes.FailedNodeIds()),
			)
			s.logger.Error(msg)
			return nil, sdk.NewStatusError(http.StatusInternalServerError, "%s", msg)
		}
	}

	result, err := s.controllers.Delete(ctx, req.ModelId, req.TenantId)
	if err != nil {
		return nil, err
	}
	s.logger.Infof("Model controller for model %s successfully deleted from index, result: %s", req.ModelId, result.Result)
	if m != nil {
		if err := s.models.SetControllerEnabled(ctx, req.ModelId, req.TenantId, false); err != nil {
			s.logger.Warnf("failed to mark model %s as controller-disabled: %s", req.ModelId, err)
		}
	}
	return actionctrl.NewWriteResponse(result), nil
}
