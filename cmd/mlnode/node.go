package main

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/opst/mlcommons/pkg/action"
	"github.com/opst/mlcommons/pkg/cluster"
	configs "github.com/opst/mlcommons/pkg/configs/node"
	ctrl "github.com/opst/mlcommons/pkg/domain/controller"
	mc "github.com/opst/mlcommons/pkg/domain/memorycontainer"
	"github.com/opst/mlcommons/pkg/domain/modelcache"
	"github.com/opst/mlcommons/pkg/guardrail"
	"github.com/opst/mlcommons/pkg/sdk"
	"github.com/opst/mlcommons/pkg/service/controller"
	memorycontainers "github.com/opst/mlcommons/pkg/service/memorycontainer"
	"github.com/opst/mlcommons/pkg/tracing"
	"github.com/opst/mlcommons/pkg/utils/echoutil"
)

// Node is a running member of a cluster.
type Node struct {
	Server      *echo.Echo
	Local       cluster.DiscoveryNode
	State       *cluster.State
	Registry    *action.Registry
	Client      *sdk.Client
	Cache       *modelcache.Cache
	Controllers []*controller.Service
}

// LocalNode is the discovery node of the configured peer.
func LocalNode(p *configs.PeerConfig) cluster.DiscoveryNode {
	return cluster.DiscoveryNode{
		Id:      p.Id(),
		Name:    p.Name(),
		Address: p.Address().String(),
		Roles:   p.Roles(),
	}
}

// BuildNode wires services of a node on delegate, and mounts them on a new echo server.
//
// transport is used to reach other nodes. Requests to the local node are served in process.
func BuildNode(
	conf *configs.NodeConfig,
	delegate sdk.Delegate,
	transport cluster.Transport,
	tracer *tracing.Tracer,
	loglevel string,
) (*Node, error) {
	e := echo.New()
	e.HideBanner = true
	echoutil.SetLevel(e, loglevel)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		e.DefaultHTTPErrorHandler(err, c)
		e.Logger.Error(err)
	}
	e.Use(echoutil.LogHandlerFunc)

	client := sdk.NewClient(
		delegate,
		sdk.WithMultiTenancy(conf.MultiTenancy()),
		sdk.WithDefaultExecutor(sdk.NewPoolExecutor(conf.Transport().Parallelism())),
	)

	local := LocalNode(conf.Node())
	state := cluster.NewState(conf.Cluster().Name(), cluster.NewDiscoveryNodes(local))
	registry := action.NewRegistry()
	broadcaster := cluster.NewBroadcaster(
		state,
		cluster.Loopback(local.Id, registry, transport),
		cluster.WithParallelism(conf.Transport().Parallelism()),
		cluster.WithNodeTimeout(conf.Transport().Timeout()),
	)
	cache := modelcache.New()

	node := &Node{
		Server:   e,
		Local:    local,
		State:    state,
		Registry: registry,
		Client:   client,
		Cache:    cache,
	}
	for _, family := range []ctrl.Family{ctrl.Legacy, ctrl.Model} {
		svc := controller.New(
			family, client, broadcaster, cache,
			controller.WithLogger(e.Logger),
			controller.WithTracer(tracer),
		)
		if err := svc.Register(registry); err != nil {
			return nil, err
		}
		node.Controllers = append(node.Controllers, svc)
	}

	rail, err := guardrail.FromConfig(client, conf.Guardrail(), guardrail.WithLogger(e.Logger))
	if err != nil {
		return nil, err
	}
	containers := mc.NewService(client, mc.WithLogger(e.Logger), mc.WithGuardrail(rail))
	if err := memorycontainers.Register(registry, containers); err != nil {
		return nil, err
	}

	cluster.Route(e, local.Id, conf.Transport().Secret(), registry)
	for _, r := range e.Routes() {
		e.Logger.Debugf("- mount handler: %s %s", r.Method, r.Path)
	}
	return node, nil
}

// Discover keeps membership of the node up to date until ctx is done.
//
// It returns at once when no discovery is configured.
func (n *Node) Discover(ctx context.Context, d cluster.Discovery, conf *configs.DiscoveryConfig) error {
	if d == nil {
		return nil
	}
	interval := configs.DefaultRefreshInterval
	if k := conf.Kubernetes(); k != nil {
		interval = k.RefreshInterval()
	}
	return cluster.Watch(ctx, n.Server.Logger, n.State, n.Local, d, interval)
}

// StaticDiscovery is the discovery of statically configured peers, or nil when none are configured.
func StaticDiscovery(conf *configs.DiscoveryConfig) cluster.Discovery {
	peers := conf.Static()
	if len(peers) == 0 {
		return nil
	}
	nodes := cluster.Static{}
	for _, p := range peers {
		nodes = append(nodes, LocalNode(p))
	}
	return nodes
}

func (n *Node) String() string {
	return fmt.Sprintf("%s@%s (%s)", n.Local.Id, n.Local.Address, n.State.ClusterName())
}
