package cluster

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	xe "github.com/opst/mlcommons/pkg/errors"
	"github.com/opst/mlcommons/pkg/loop"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Discovery finds nodes other than the local node.
type Discovery interface {
	Discover(ctx context.Context) ([]DiscoveryNode, error)
}

// Static is a fixed list of nodes.
type Static []DiscoveryNode

func (s Static) Discover(context.Context) ([]DiscoveryNode, error) {
	return append([]DiscoveryNode{}, s...), nil
}

// LabelRoles is a pod label listing node roles, separated by ".". Pods without it are data nodes.
const LabelRoles = "mlcommons.opensearch.org/roles"

// Kubernetes finds nodes as ready pods matching a label selector.
type Kubernetes struct {
	client        kubernetes.Interface
	namespace     string
	labelSelector string
	scheme        string
	port          int32
}

var _ Discovery = &Kubernetes{}

func NewKubernetes(client kubernetes.Interface, namespace string, labelSelector string, scheme string, port int32) *Kubernetes {
	return &Kubernetes{
		client:        client,
		namespace:     namespace,
		labelSelector: labelSelector,
		scheme:        scheme,
		port:          port,
	}
}

func (k *Kubernetes) Discover(ctx context.Context) ([]DiscoveryNode, error) {
	pods, err := k.client.CoreV1().Pods(k.namespace).List(ctx, metav1.ListOptions{LabelSelector: k.labelSelector})
	if err != nil {
		return nil, xe.Wrap(err)
	}

	nodes := []DiscoveryNode{}
	for _, pod := range pods.Items {
		if !isReady(&pod) {
			continue
		}
		roles := []string{RoleData}
		if r, ok := pod.Labels[LabelRoles]; ok && r != "" {
			roles = strings.Split(r, ".")
		}
		nodes = append(nodes, DiscoveryNode{
			Id:      pod.Name,
			Name:    pod.Name,
			Address: fmt.Sprintf("%s://%s", k.scheme, net.JoinHostPort(pod.Status.PodIP, strconv.Itoa(int(k.port)))),
			Roles:   roles,
		})
	}
	return nodes, nil
}

func isReady(pod *corev1.Pod) bool {
	if pod.DeletionTimestamp != nil || pod.Status.Phase != corev1.PodRunning || pod.Status.PodIP == "" {
		return false
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// Refresh replaces membership in state with the local node and nodes found by d.
func Refresh(ctx context.Context, state *State, local DiscoveryNode, d Discovery) error {
	found, err := d.Discover(ctx)
	if err != nil {
		return err
	}
	state.Set(NewDiscoveryNodes(local, found...))
	return nil
}

// Watch refreshes state every interval until ctx is done.
//
// Failures are logged and the last membership is kept.
func Watch(ctx context.Context, logger echo.Logger, state *State, local DiscoveryNode, d Discovery, interval time.Duration) error {
	options := []loop.LoopOption{}
	if 0 < interval {
		options = append(options, loop.WithTimeout(interval))
	}
	_, err := loop.Start(ctx, state.Nodes().Size(), func(ctx context.Context, last int) (int, loop.Next) {
		if err := Refresh(ctx, state, local, d); err != nil {
			logger.Warnf("failed to discover nodes: %s", err)
			return last, loop.Continue(interval)
		}
		if size := state.Nodes().Size(); size != last {
			logger.Infof("cluster has %d nodes (was %d)", size, last)
			return size, loop.Continue(interval)
		}
		return last, loop.Continue(interval)
	}, options...)
	return err
}
