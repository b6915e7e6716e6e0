package controller_test

import (
	"context"
	"testing"

	"github.com/opst/mlcommons/pkg/domain/controller"
	"github.com/opst/mlcommons/pkg/sdk"
	"github.com/opst/mlcommons/pkg/sdk/memory"
	"github.com/opst/mlcommons/pkg/utils/try"
)

func TestRepository(t *testing.T) {
	ctx := context.Background()
	client := sdk.NewClient(memory.New(), sdk.WithDefaultExecutor(sdk.DirectExecutor))

	for _, family := range []controller.Family{controller.Legacy, controller.Model} {
		t.Run(family.String(), func(t *testing.T) {
			testee := controller.NewRepository(client, family)

			_, err := testee.Get(ctx, "m1", "")
			if !sdk.IsNotFound(err) {
				t.Fatalf("unexpected error: %v", err)
			}
			expectedMessage := "Failed to find model controller with the provided model ID: m1"
			if se, ok := err.(*sdk.StatusError); !ok || se.Message != expectedMessage {
				t.Errorf("unexpected error: %#v", err)
			}

			put := try.To(testee.Put(ctx, withUser(family, "alice", &controller.RateLimiter{Number: "1"}))).OrFatal(t)
			if put.Result != sdk.ResultCreated || put.Id != "testModelId" {
				t.Errorf("unexpected result: %+v", put)
			}

			c := try.To(testee.Get(ctx, "testModelId", "")).OrFatal(t)
			c.Update(withUser(family, "alice", &controller.RateLimiter{Unit: controller.Seconds}))
			updated := try.To(testee.Update(ctx, c)).OrFatal(t)
			if updated.Result != sdk.ResultUpdated {
				t.Errorf("unexpected result: %+v", updated)
			}

			got := try.To(testee.Get(ctx, "testModelId", "")).OrFatal(t)
			if got.Family != family || !got.Limiters["alice"].Equal(&controller.RateLimiter{Number: "1", Unit: controller.Seconds}) {
				t.Errorf("unexpected controller: %+v", got)
			}

			deleted := try.To(testee.Delete(ctx, "testModelId", "")).OrFatal(t)
			if deleted.Result != sdk.ResultDeleted {
				t.Errorf("unexpected result: %+v", deleted)
			}
		})
	}
}
