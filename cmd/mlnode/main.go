package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opst/mlcommons/pkg/cluster"
	configs "github.com/opst/mlcommons/pkg/configs/node"
	"github.com/opst/mlcommons/pkg/sdk/factory"
	"github.com/opst/mlcommons/pkg/tracing"
	"github.com/opst/mlcommons/pkg/utils/filewatch"
	"github.com/opst/mlcommons/pkg/utils/kubeutil"
	"github.com/opst/mlcommons/pkg/utils/try"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Config     string `flag:"config" help:"path to the node config file."`
	LogLevel   string `flag:"loglevel" metavar:"debug|info|warn|error|off" help:"log level."`
	Kubeconfig string `flag:"kubeconfig" help:"(optional) path to kubeconfig file."`
}

func main() {
	logger := log.Default()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := try.To(flarc.NewCommand(
		"ml commons node",
		Flag{
			Config:   os.Getenv("MLCOMMONS_NODE_CONFIG"),
			LogLevel: "warn",
		},
		flarc.Args{},
		func(ctx context.Context, c flarc.Commandline[Flag], _ []any) error {
			flags := c.Flags()
			for {
				err := serve(ctx, flags.Config, flags.Kubeconfig, flags.LogLevel)
				if !errors.Is(err, filewatch.ErrModified) {
					return err
				}
				logger.Printf("restarting: %s", err)
			}
		},
	)).OrFatal(logger)

	os.Exit(flarc.Run(ctx, cmd))
}

// serve runs a node until ctx is done or the config file is modified.
//
// When the config file is modified, it returns an error wrapping filewatch.ErrModified.
func serve(ctx context.Context, configPath string, kubeconfig string, loglevel string) error {
	conf, err := configs.LoadNodeConfig(configPath)
	if err != nil {
		return err
	}
	wctx, wcancel, err := filewatch.UntilModifyContext(ctx, configPath)
	if err != nil {
		return err
	}
	defer wcancel()
	ctx = wctx

	delegate, release, err := factory.New(ctx, conf.RemoteMetadata(), conf.Postgres())
	if err != nil {
		return err
	}
	defer release()

	provider, shutdownTracing, err := tracing.NewProvider(ctx, conf.Tracing())
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), tracing.ExportTimeout)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Printf("failed to flush traces: %s", err)
		}
	}()
	tracer := tracing.New(provider)
	tracing.InitializeAll(tracer)

	transport := cluster.NewHTTPTransport(
		conf.Node().Id(), conf.Transport().Secret(),
		cluster.WithHTTPClient(&http.Client{Timeout: conf.Transport().Timeout()}),
	)
	node, err := BuildNode(conf, delegate, transport, tracer, loglevel)
	if err != nil {
		return err
	}

	discovery := StaticDiscovery(conf.Discovery())
	if k := conf.Discovery().Kubernetes(); k != nil {
		clientset, err := kubeutil.ConnectToK8s(kubeconfig)
		if err != nil {
			return err
		}
		discovery = cluster.NewKubernetes(clientset, k.Namespace(), k.LabelSelector(), k.Scheme(), k.Port())
	}
	go func() {
		if err := node.Discover(ctx, discovery, conf.Discovery()); err != nil && ctx.Err() == nil {
			node.Server.Logger.Errorf("discovery stops: %s", err)
		}
	}()

	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		node.Server.Logger.Infof("starting node %s", node)
		if err := node.Server.Start(fmt.Sprintf(":%d", conf.Transport().Port())); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ch <- err
		}
	}()

	var exit error
	select {
	case <-ctx.Done():
		if cause := context.Cause(ctx); errors.Is(cause, filewatch.ErrModified) {
			exit = cause
		}
	case err := <-ch:
		exit = err
	}

	node.Server.Logger.Info("shutting down...")
	qctx, qcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer qcancel()
	if err := node.Server.Shutdown(qctx); err != nil {
		return errors.Join(exit, err)
	}
	return exit
}
