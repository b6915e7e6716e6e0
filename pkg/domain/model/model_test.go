package model_test

import (
	"context"
	"testing"

	"github.com/opst/mlcommons/pkg/cmp"
	"github.com/opst/mlcommons/pkg/domain/model"
	"github.com/opst/mlcommons/pkg/sdk"
	"github.com/opst/mlcommons/pkg/sdk/memory"
	"github.com/opst/mlcommons/pkg/utils/try"
)

func TestModel_WorkerNodes(t *testing.T) {
	for state, expected := range map[model.State][]string{
		model.Deployed:          {"n1", "n2"},
		model.PartiallyDeployed: {"n1", "n2"},
		model.Deploying:         nil,
		model.Registered:        nil,
		model.Undeployed:        nil,
	} {
		t.Run(string(state), func(t *testing.T) {
			m := &model.Model{State: state, PlanningWorkerNodes: []string{"n1", "n2"}}
			if got := m.WorkerNodes(); !cmp.SliceEq(got, expected) {
				t.Errorf("expected %v, but %v", expected, got)
			}
		})
	}
}

func TestAlgorithm_SupportsController(t *testing.T) {
	for algorithm, expected := range map[model.Algorithm]bool{
		model.TextEmbedding:   true,
		model.Remote:          true,
		model.SparseEncoding:  false,
		model.KMeansAlgorithm: false,
	} {
		if got := algorithm.SupportsController(); got != expected {
			t.Errorf("%s: expected %v, but %v", algorithm, expected, got)
		}
	}
}

func TestRepository(t *testing.T) {
	ctx := context.Background()
	testee := model.NewRepository(sdk.NewClient(memory.New(), sdk.WithDefaultExecutor(sdk.DirectExecutor)))

	if _, err := testee.Get(ctx, "m1", ""); !sdk.IsNotFound(err) {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := testee.Put(ctx, &model.Model{
		ModelId: "m1", Name: "embedding", Algorithm: model.TextEmbedding,
		State: model.Deployed, PlanningWorkerNodes: []string{"n1"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := testee.SetControllerEnabled(ctx, "m1", "", true); err != nil {
		t.Fatal(err)
	}

	got := try.To(testee.Get(ctx, "m1", "")).OrFatal(t)
	if got.Name != "embedding" || !got.ControllerEnabled() || !cmp.SliceEq(got.WorkerNodes(), []string{"n1"}) {
		t.Errorf("unexpected model: %+v", got)
	}
}
