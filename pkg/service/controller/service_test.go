package controller_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/opst/mlcommons/pkg/action"
	actionctrl "github.com/opst/mlcommons/pkg/action/controller"
	"github.com/opst/mlcommons/pkg/cluster"
	"github.com/opst/mlcommons/pkg/cluster/mock"
	"github.com/opst/mlcommons/pkg/cmp"
	ctrl "github.com/opst/mlcommons/pkg/domain/controller"
	"github.com/opst/mlcommons/pkg/domain/model"
	"github.com/opst/mlcommons/pkg/domain/modelcache"
	"github.com/opst/mlcommons/pkg/sdk"
	"github.com/opst/mlcommons/pkg/sdk/memory"
	service "github.com/opst/mlcommons/pkg/service/controller"
	"github.com/opst/mlcommons/pkg/utils/try"
	"github.com/opst/mlcommons/pkg/wire"
	"golang.org/x/time/rate"
)

var (
	node1 = cluster.DiscoveryNode{Id: "node-1", Name: "n1", Address: "http://n1:9300", Roles: []string{cluster.RoleData}}
	node2 = cluster.DiscoveryNode{Id: "node-2", Name: "n2", Address: "http://n2:9300", Roles: []string{cluster.RoleData}}
)

// env is a cluster of node-1 (local) and node-2 (remote, mocked).
type env struct {
	testee    *service.Service
	models    *model.Repository
	repo      *ctrl.Repository
	cache     *modelcache.Cache
	transport *mock.Transport
}

func newEnv(t *testing.T, family ctrl.Family) *env {
	t.Helper()
	client := sdk.NewClient(memory.New(), sdk.WithDefaultExecutor(sdk.DirectExecutor))
	registry := action.NewRegistry()
	transport := mock.New()
	state := cluster.NewState("test-cluster", cluster.NewDiscoveryNodes(node1, node2))
	broadcaster := cluster.NewBroadcaster(state, cluster.Loopback(node1.Id, registry, transport))
	cache := modelcache.New()

	testee := service.New(family, client, broadcaster, cache)
	if err := testee.Register(registry); err != nil {
		t.Fatal(err)
	}
	return &env{
		testee:    testee,
		models:    model.NewRepository(client),
		repo:      ctrl.NewRepository(client, family),
		cache:     cache,
		transport: transport,
	}
}

func (e *env) putModel(t *testing.T, m *model.Model) {
	t.Helper()
	if err := e.models.Put(context.Background(), m); err != nil {
		t.Fatal(err)
	}
}

// respondFromNode2 makes node-2 reply with status, or fail with err.
func (e *env) respondFromNode2(status map[string]string, err error) {
	e.transport.Impl.Send = func(_ context.Context, node cluster.DiscoveryNode, _ string, _ wire.Writeable) (wire.Writeable, error) {
		if err != nil {
			return nil, err
		}
		return &actionctrl.NodeResponse{Node: node, Status: status}, nil
	}
}

func newController(family ctrl.Family, modelId string, user string, number string) *ctrl.Controller {
	return &ctrl.Controller{
		Family:  family,
		ModelId: modelId,
		Limiters: map[string]*ctrl.RateLimiter{
			user: {Number: number, Unit: ctrl.Seconds},
		},
	}
}

func deployedModel(modelId string, workers ...string) *model.Model {
	return &model.Model{
		ModelId: modelId, Name: "embedding", Algorithm: model.TextEmbedding,
		State: model.Deployed, PlanningWorkerNodes: workers,
	}
}

func assertStatusError(t *testing.T, err error, status int, message string) {
	t.Helper()
	var statusErr *sdk.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("unexpected error: %v", err)
	}
	if statusErr.Status != status || statusErr.Message != message {
		t.Errorf(
			"unexpected error:\n===actual===\n%d %s\n===expected===\n%d %s",
			statusErr.Status, statusErr.Message, status, message,
		)
	}
}

var families = map[string]ctrl.Family{"controller": ctrl.Legacy, "model controller": ctrl.Model}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	for name, family := range families {
		t.Run(name, func(t *testing.T) {
			t.Run("it fails when the model is missing", func(t *testing.T) {
				e := newEnv(t, family)
				_, err := e.testee.Create(ctx, newController(family, "m1", "alice", "10"))
				assertStatusError(
					t, err, http.StatusNotFound,
					"Failed to find model to create the corresponding model controller with the provided model ID: m1",
				)
			})

			t.Run("it fails for algorithm not supporting controllers", func(t *testing.T) {
				e := newEnv(t, family)
				e.putModel(t, &model.Model{ModelId: "m1", Algorithm: model.KMeansAlgorithm, State: model.Registered})
				_, err := e.testee.Create(ctx, newController(family, "m1", "alice", "10"))
				assertStatusError(
					t, err, http.StatusForbidden,
					"Creating model controller on this operation on the function category KMEANS is not supported.",
				)
			})

			t.Run("it fails when the model is DEPLOYING", func(t *testing.T) {
				e := newEnv(t, family)
				e.putModel(t, &model.Model{ModelId: "m1", Algorithm: model.Remote, State: model.Deploying})
				_, err := e.testee.Create(ctx, newController(family, "m1", "alice", "10"))
				assertStatusError(
					t, err, http.StatusConflict,
					"Creating a model controller during its corresponding model in DEPLOYING state is not allowed, "+
						"please either create the model controller after it is deployed or before deploying it. Model ID: m1",
				)
			})

			t.Run("it stores the controller without deploying, for undeployed model", func(t *testing.T) {
				e := newEnv(t, family)
				e.putModel(t, &model.Model{ModelId: "m1", Algorithm: model.TextEmbedding, State: model.Registered})

				got := try.To(e.testee.Create(ctx, newController(family, "m1", "alice", "10"))).OrFatal(t)
				if *got != (actionctrl.CreateResponse{ModelId: "m1", Status: sdk.ResultCreated}) {
					t.Errorf("unexpected response: %+v", got)
				}
				if len(e.transport.Calls.Send) != 0 {
					t.Errorf("nodes are requested: %v", e.transport.SentTo())
				}
				m := try.To(e.models.Get(ctx, "m1", "")).OrFatal(t)
				if !m.ControllerEnabled() {
					t.Errorf("model is not marked as controller-enabled")
				}
				stored := try.To(e.repo.Get(ctx, "m1", "")).OrFatal(t)
				if stored.Limiters["alice"].Number != "10" {
					t.Errorf("unexpected stored controller: %+v", stored.Limiters)
				}
			})

			t.Run("it deploys the controller to worker nodes", func(t *testing.T) {
				e := newEnv(t, family)
				e.putModel(t, deployedModel("m1", node1.Id, node2.Id))
				e.cache.Deploy("m1")
				e.respondFromNode2(map[string]string{"m1": service.StatusSuccess}, nil)

				got := try.To(e.testee.Create(ctx, newController(family, "m1", "alice", "10"))).OrFatal(t)
				if got.Status != sdk.ResultCreated {
					t.Errorf("unexpected response: %+v", got)
				}
				if sent := e.transport.SentTo(); !cmp.SliceEq(sent, []string{node2.Id}) {
					t.Errorf("unexpected nodes: %v", sent)
				}
				if a := e.transport.Calls.Send[0].Action; a != action.NodeAction(actionctrl.NamesOf(family).Deploy) {
					t.Errorf("unexpected action: %s", a)
				}
				l, ok := e.cache.Limiter("m1", "alice")
				if !ok || l.Limit() != rate.Limit(10) || l.Burst() != 10 {
					t.Errorf("limiter is not installed on local node: %v", l)
				}
			})

			t.Run("it reports nodes failed to deploy", func(t *testing.T) {
				e := newEnv(t, family)
				e.putModel(t, deployedModel("m1", node1.Id, node2.Id, "node-3"))
				e.cache.Deploy("m1")
				e.respondFromNode2(nil, errors.New("connection refused"))

				_, err := e.testee.Create(ctx, newController(family, "m1", "alice", "10"))
				assertStatusError(
					t, err, http.StatusInternalServerError,
					"Successfully create model controller index with model ID m1 but deploy model controller to cache "+
						"was failed on following nodes [node-2, node-3], please retry.",
				)
				if _, err := e.repo.Get(ctx, "m1", ""); err != nil {
					t.Errorf("controller should be stored: %v", err)
				}
			})

			t.Run("overwriting with no limits clears limiters on worker nodes", func(t *testing.T) {
				e := newEnv(t, family)
				e.putModel(t, deployedModel("m1", node1.Id, node2.Id))
				e.cache.Deploy("m1")
				e.respondFromNode2(map[string]string{"m1": service.StatusSuccess}, nil)
				try.To(e.testee.Create(ctx, newController(family, "m1", "alice", "10"))).OrFatal(t)

				got := try.To(e.testee.Create(ctx, &ctrl.Controller{
					Family: family, ModelId: "m1", Limiters: map[string]*ctrl.RateLimiter{},
				})).OrFatal(t)
				if got.Status != sdk.ResultUpdated {
					t.Errorf("unexpected response: %+v", got)
				}
				if _, ok := e.cache.Limiter("m1", "alice"); ok {
					t.Errorf("limiter is left on local node")
				}
				if sent := e.transport.SentTo(); !cmp.SliceEq(sent, []string{node2.Id, node2.Id}) {
					t.Errorf("unexpected nodes: %v", sent)
				}
			})

			t.Run("overwriting reports updated", func(t *testing.T) {
				e := newEnv(t, family)
				e.putModel(t, &model.Model{ModelId: "m1", Algorithm: model.TextEmbedding, State: model.Registered})
				try.To(e.testee.Create(ctx, newController(family, "m1", "alice", "10"))).OrFatal(t)
				got := try.To(e.testee.Create(ctx, newController(family, "m1", "alice", "20"))).OrFatal(t)
				if got.Status != sdk.ResultUpdated {
					t.Errorf("unexpected response: %+v", got)
				}
			})
		})
	}
}

func TestService_Get(t *testing.T) {
	ctx := context.Background()
	for name, family := range families {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, family)
			req := &actionctrl.ModelIdRequest{Family: family, ModelId: "m1"}

			_, err := e.testee.Get(ctx, req)
			assertStatusError(t, err, http.StatusNotFound, "Failed to find model controller with the provided model ID: m1")

			try.To(e.repo.Put(ctx, newController(family, "m1", "alice", "10"))).OrFatal(t)
			_, err = e.testee.Get(ctx, req)
			assertStatusError(
				t, err, http.StatusNotFound,
				"Failed to find model to get the corresponding model controller with the provided model ID: m1",
			)

			e.putModel(t, deployedModel("m1"))
			got := try.To(e.testee.Get(ctx, req)).OrFatal(t)
			if got.Controller.ModelId != "m1" || got.Controller.Limiters["alice"].Number != "10" {
				t.Errorf("unexpected controller: %+v", got.Controller)
			}
		})
	}
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	for name, family := range families {
		t.Run(name, func(t *testing.T) {
			t.Run("it fails when controller is not created yet", func(t *testing.T) {
				e := newEnv(t, family)
				e.putModel(t, deployedModel("m1"))
				_, err := e.testee.Update(ctx, newController(family, "m1", "alice", "10"))
				assertStatusError(
					t, err, http.StatusConflict,
					"Model controller haven't been created for the model. Consider calling create model controller api instead. Model ID: m1",
				)
			})

			t.Run("it passes not found through, when model is controller-enabled", func(t *testing.T) {
				e := newEnv(t, family)
				enabled := true
				m := deployedModel("m1")
				m.IsModelControllerEnabled = &enabled
				e.putModel(t, m)
				_, err := e.testee.Update(ctx, newController(family, "m1", "alice", "10"))
				assertStatusError(t, err, http.StatusNotFound, "Failed to find model controller with the provided model ID: m1")
			})

			t.Run("it redeploys changed limiters", func(t *testing.T) {
				e := newEnv(t, family)
				e.putModel(t, deployedModel("m1", node1.Id))
				e.cache.Deploy("m1")
				try.To(e.repo.Put(ctx, newController(family, "m1", "alice", "10"))).OrFatal(t)

				got := try.To(e.testee.Update(ctx, newController(family, "m1", "bob", "5"))).OrFatal(t)
				if got.Result != sdk.ResultUpdated || got.Id != "m1" {
					t.Errorf("unexpected response: %+v", got)
				}

				stored := try.To(e.repo.Get(ctx, "m1", "")).OrFatal(t)
				if !cmp.SliceEq(cmp.SortedKeys(stored.Limiters), []string{"alice", "bob"}) {
					t.Errorf("limiters are not merged: %+v", stored.Limiters)
				}
				for user, expected := range map[string]rate.Limit{"alice": 10, "bob": 5} {
					if l, ok := e.cache.Limiter("m1", user); !ok || l.Limit() != expected {
						t.Errorf("%s: limiter is not deployed: %v", user, l)
					}
				}
			})

			t.Run("it does not deploy when nothing changes", func(t *testing.T) {
				e := newEnv(t, family)
				e.putModel(t, deployedModel("m1", node1.Id, node2.Id))
				try.To(e.repo.Put(ctx, newController(family, "m1", "alice", "10"))).OrFatal(t)

				try.To(e.testee.Update(ctx, newController(family, "m1", "alice", "10"))).OrFatal(t)
				if len(e.transport.Calls.Send) != 0 {
					t.Errorf("nodes are requested: %v", e.transport.SentTo())
				}
			})

			t.Run("it reports nodes failed to redeploy", func(t *testing.T) {
				e := newEnv(t, family)
				e.putModel(t, deployedModel("m1", node2.Id))
				try.To(e.repo.Put(ctx, newController(family, "m1", "alice", "10"))).OrFatal(t)
				e.respondFromNode2(nil, errors.New("timeout"))

				_, err := e.testee.Update(ctx, newController(family, "m1", "alice", "20"))
				assertStatusError(
					t, err, http.StatusInternalServerError,
					"Successfully update model controller index with model ID m1 but deploy model controller to cache "+
						"was failed on following nodes [node-2], please retry.",
				)
			})
		})
	}
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	for name, family := range families {
		t.Run(name, func(t *testing.T) {
			req := &actionctrl.ModelIdRequest{Family: family, ModelId: "m1"}

			t.Run("it fails when controller is missing", func(t *testing.T) {
				e := newEnv(t, family)
				e.putModel(t, deployedModel("m1"))
				_, err := e.testee.Delete(ctx, req)
				assertStatusError(t, err, http.StatusNotFound, "Failed to find model controller with the provided model ID: m1")
			})

			t.Run("it undeploys from all nodes, then deletes", func(t *testing.T) {
				e := newEnv(t, family)
				e.putModel(t, deployedModel("m1", node1.Id, node2.Id))
				e.cache.Deploy("m1")
				e.respondFromNode2(map[string]string{"m1": service.StatusSuccess}, nil)
				try.To(e.testee.Create(ctx, newController(family, "m1", "alice", "10"))).OrFatal(t)
				if _, ok := e.cache.Limiter("m1", "alice"); !ok {
					t.Fatal("limiter is not deployed on local node")
				}

				got := try.To(e.testee.Delete(ctx, req)).OrFatal(t)
				if got.Result != sdk.ResultDeleted {
					t.Errorf("unexpected response: %+v", got)
				}
				if _, ok := e.cache.Limiter("m1", "alice"); ok {
					t.Errorf("limiter is left on local node")
				}
				if a := e.transport.Calls.Send[len(e.transport.Calls.Send)-1].Action; a != action.NodeAction(actionctrl.NamesOf(family).Undeploy) {
					t.Errorf("unexpected action: %s", a)
				}
				if m := try.To(e.models.Get(ctx, "m1", "")).OrFatal(t); m.IsModelControllerEnabled == nil || *m.IsModelControllerEnabled {
					t.Errorf("model is still marked as controller-enabled")
				}
				if _, err := e.repo.Get(ctx, "m1", ""); !sdk.IsNotFound(err) {
					t.Errorf("controller is left: %v", err)
				}
			})

			t.Run("it aborts when some node failed to undeploy", func(t *testing.T) {
				e := newEnv(t, family)
				e.putModel(t, deployedModel("m1", node1.Id))
				try.To(e.repo.Put(ctx, newController(family, "m1", "alice", "10"))).OrFatal(t)
				e.respondFromNode2(nil, errors.New("connection refused"))

				_, err := e.testee.Delete(ctx, req)
				assertStatusError(
					t, err, http.StatusInternalServerError,
					"Failed to undeploy model controller with model ID m1 on following nodes [node-2], deletion is aborted. "+
						"Please retry or undeploy the model manually and then perform the deletion.",
				)
				if _, err := e.repo.Get(ctx, "m1", ""); err != nil {
					t.Errorf("controller should be left: %v", err)
				}
			})

			t.Run("it undeploys from all nodes and deletes the controller of missing model", func(t *testing.T) {
				e := newEnv(t, family)
				e.cache.Deploy("m1")
				c := newController(family, "m1", "alice", "10")
				try.To(e.repo.Put(ctx, c)).OrFatal(t)
				try.To(e.cache.SetController(c)).OrFatal(t)
				e.respondFromNode2(map[string]string{}, nil)

				got := try.To(e.testee.Delete(ctx, req)).OrFatal(t)
				if got.Result != sdk.ResultDeleted {
					t.Errorf("unexpected response: %+v", got)
				}
				if _, ok := e.cache.Limiter("m1", "alice"); ok {
					t.Errorf("limiter is left on local node")
				}
				if sent := e.transport.SentTo(); !cmp.SliceEq(sent, []string{node2.Id}) {
					t.Errorf("unexpected nodes: %v", sent)
				}
				if a := e.transport.Calls.Send[0].Action; a != action.NodeAction(actionctrl.NamesOf(family).Undeploy) {
					t.Errorf("unexpected action: %s", a)
				}
				if _, err := e.repo.Get(ctx, "m1", ""); !sdk.IsNotFound(err) {
					t.Errorf("controller is left: %v", err)
				}
			})
		})
	}
}

func TestService_Nodes(t *testing.T) {
	ctx := context.Background()
	family := ctrl.Model

	t.Run("node without the model reports nothing", func(t *testing.T) {
		e := newEnv(t, family)
		resp := try.To(e.testee.DeployOnNode(ctx, &actionctrl.NodeRequest{Nodes: &actionctrl.NodesRequest{
			Operation: actionctrl.Deploy, Family: family, ModelId: "m1",
		}})).OrFatal(t)
		if !resp.IsModelControllerDeployStatusEmpty() || resp.Node.Id != node1.Id {
			t.Errorf("unexpected response: %+v", resp)
		}

		resp = try.To(e.testee.UndeployOnNode(ctx, &actionctrl.NodeRequest{Nodes: &actionctrl.NodesRequest{
			Operation: actionctrl.Undeploy, Family: family, ModelId: "m1",
		}})).OrFatal(t)
		if !resp.IsModelControllerUndeployStatusEmpty() {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("node with the model but without controller reports why", func(t *testing.T) {
		e := newEnv(t, family)
		e.cache.Deploy("m1")
		resp := try.To(e.testee.DeployOnNode(ctx, &actionctrl.NodeRequest{Nodes: &actionctrl.NodesRequest{
			Operation: actionctrl.Deploy, Family: family, ModelId: "m1",
		}})).OrFatal(t)
		if !cmp.MapEq(resp.Status, map[string]string{"m1": "Failed to find model controller with the provided model ID: m1"}) {
			t.Errorf("unexpected status: %v", resp.Status)
		}
	})

	t.Run("dispatch gathers responses and failures", func(t *testing.T) {
		e := newEnv(t, family)
		e.cache.Deploy("m1")
		try.To(e.repo.Put(ctx, newController(family, "m1", "alice", "10"))).OrFatal(t)
		e.respondFromNode2(map[string]string{}, nil)

		got := try.To(e.testee.Dispatch(ctx, &actionctrl.NodesRequest{
			Operation: actionctrl.Deploy, Family: family, ModelId: "m1",
			NodeIds: []string{node1.Id, node2.Id, "node-9"},
		})).OrFatal(t)

		if got.ClusterName != "test-cluster" || len(got.Nodes) != 2 {
			t.Fatalf("unexpected response: %+v", got)
		}
		if !cmp.MapEq(got.Nodes[0].Status, map[string]string{"m1": service.StatusSuccess}) || !got.Nodes[1].IsStatusEmpty() {
			t.Errorf("unexpected statuses: %v, %v", got.Nodes[0].Status, got.Nodes[1].Status)
		}
		if !cmp.SliceEq(got.FailedNodeIds(), []string{"node-9"}) {
			t.Errorf("unexpected failures: %v", got.FailedNodeIds())
		}
	})

	t.Run("dispatch refuses other family", func(t *testing.T) {
		e := newEnv(t, family)
		_, err := e.testee.Dispatch(ctx, &actionctrl.NodesRequest{Operation: actionctrl.Deploy, Family: ctrl.Legacy, ModelId: "m1"})
		var argErr *sdk.IllegalArgumentError
		if !errors.As(err, &argErr) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestService_Register(t *testing.T) {
	registry := action.NewRegistry()
	e := newEnv(t, ctrl.Legacy)
	if err := e.testee.Register(registry); err != nil {
		t.Fatal(err)
	}
	names := actionctrl.NamesOf(ctrl.Legacy)
	expected := []string{
		names.Create, names.Delete, names.Deploy, action.NodeAction(names.Deploy),
		names.Get, names.Undeploy, action.NodeAction(names.Undeploy), names.Update,
	}
	if !cmp.SliceContentEq(registry.Names(), expected) {
		t.Errorf("unexpected names: %v", registry.Names())
	}
	if err := e.testee.Register(registry); !errors.Is(err, action.ErrDuplicatedAction) {
		t.Errorf("unexpected error: %v", err)
	}
}
