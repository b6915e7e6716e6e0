package cluster_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/opst/mlcommons/pkg/cluster"
	"github.com/opst/mlcommons/pkg/cmp"
	"github.com/opst/mlcommons/pkg/utils/try"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

type podSpec struct {
	name   string
	ip     string
	phase  corev1.PodPhase
	ready  bool
	labels map[string]string
}

func pod(namespace string, s podSpec) *corev1.Pod {
	status := corev1.ConditionFalse
	if s.ready {
		status = corev1.ConditionTrue
	}
	labels := map[string]string{"app": "mlnode"}
	for k, v := range s.labels {
		labels[k] = v
	}
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: s.name, Namespace: namespace, Labels: labels},
		Status: corev1.PodStatus{
			Phase:      s.phase,
			PodIP:      s.ip,
			Conditions: []corev1.PodCondition{{Type: corev1.PodReady, Status: status}},
		},
	}
}

func TestKubernetes(t *testing.T) {
	client := fake.NewSimpleClientset(
		pod("ml", podSpec{name: "mlnode-0", ip: "10.0.0.10", phase: corev1.PodRunning, ready: true}),
		pod("ml", podSpec{
			name: "mlnode-1", ip: "10.0.0.11", phase: corev1.PodRunning, ready: true,
			labels: map[string]string{cluster.LabelRoles: "cluster_manager.ingest"},
		}),
		pod("ml", podSpec{name: "mlnode-2", ip: "10.0.0.12", phase: corev1.PodRunning, ready: false}),
		pod("ml", podSpec{name: "mlnode-3", phase: corev1.PodPending}),
		pod("other", podSpec{name: "mlnode-4", ip: "10.0.0.14", phase: corev1.PodRunning, ready: true}),
	)
	testee := cluster.NewKubernetes(client, "ml", "app=mlnode", "http", 9300)

	nodes := try.To(testee.Discover(context.Background())).OrFatal(t)

	expected := []cluster.DiscoveryNode{
		{Id: "mlnode-0", Name: "mlnode-0", Address: "http://10.0.0.10:9300", Roles: []string{cluster.RoleData}},
		{Id: "mlnode-1", Name: "mlnode-1", Address: "http://10.0.0.11:9300", Roles: []string{"cluster_manager", "ingest"}},
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Id < nodes[j].Id })
	if !cmp.SliceEqWith(nodes, expected, func(a, b cluster.DiscoveryNode) bool {
		return a.Id == b.Id && a.Name == b.Name && a.Address == b.Address && cmp.SliceEq(a.Roles, b.Roles)
	}) {
		t.Errorf("unexpected nodes:\n===actual===\n%+v\n===expected===\n%+v", nodes, expected)
	}
}

type failingDiscovery struct{}

func (failingDiscovery) Discover(context.Context) ([]cluster.DiscoveryNode, error) {
	return nil, errors.New("api server is down")
}

func TestRefresh(t *testing.T) {
	local := cluster.DiscoveryNode{Id: "node-1", Roles: []string{cluster.RoleData}}
	state := cluster.NewState("ml-cluster", cluster.NewDiscoveryNodes(local))

	try.To(0, cluster.Refresh(context.Background(), state, local, cluster.Static{
		{Id: "node-2", Roles: []string{cluster.RoleData}},
		{Id: "node-1", Roles: []string{"ignored"}},
	})).OrFatal(t)
	if got := ids(state.Nodes().Nodes()); !cmp.SliceEq(got, []string{"node-1", "node-2"}) {
		t.Errorf("unexpected nodes: %v", got)
	}

	if err := cluster.Refresh(context.Background(), state, local, failingDiscovery{}); err == nil {
		t.Errorf("error is expected")
	}
	if state.Nodes().Size() != 2 {
		t.Errorf("membership should be kept: %v", ids(state.Nodes().Nodes()))
	}
}

func TestWatch(t *testing.T) {
	local := cluster.DiscoveryNode{Id: "node-1", Roles: []string{cluster.RoleData}}
	state := cluster.NewState("ml-cluster", cluster.NewDiscoveryNodes(local))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- cluster.Watch(ctx, log.New("test"), state, local, cluster.Static{{Id: "node-2"}}, time.Millisecond)
	}()

	for state.Nodes().Size() != 2 {
		select {
		case err := <-done:
			t.Fatalf("watch stopped: %v", err)
		default:
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error: %v", err)
	}
}
