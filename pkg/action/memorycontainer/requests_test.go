package memorycontainer_test

import (
	"encoding/json"
	"testing"

	actmc "github.com/opst/mlcommons/pkg/action/memorycontainer"
	mc "github.com/opst/mlcommons/pkg/domain/memorycontainer"
	"github.com/opst/mlcommons/pkg/sdk"
	"github.com/opst/mlcommons/pkg/utils/try"
	"github.com/opst/mlcommons/pkg/wire"
)

func TestUpdateRequest_Wire(t *testing.T) {
	name := "n"
	for testname, testcase := range map[string]struct {
		when    *actmc.UpdateRequest
		version wire.Version
		tenant  string
	}{
		"name only": {
			when:    &actmc.UpdateRequest{MemoryContainerId: "c1", TenantId: "t", Update: mc.UpdateInput{Name: &name}},
			version: wire.Current,
			tenant:  "t",
		},
		"configuration, old version": {
			when: &actmc.UpdateRequest{MemoryContainerId: "c1", TenantId: "t", Update: mc.UpdateInput{
				Configuration: &mc.Configuration{LlmId: "llm", MaxInferSize: 3},
			}},
			version: wire.V_2_19_0,
		},
	} {
		t.Run(testname, func(t *testing.T) {
			payload := try.To(wire.Marshal(testcase.when, testcase.version)).OrFatal(t)
			got := try.To(wire.Unmarshal(payload, testcase.version, actmc.ReadUpdateRequest)).OrFatal(t)

			if got.MemoryContainerId != "c1" || got.TenantId != testcase.tenant {
				t.Errorf("unexpected request: %+v", got)
			}
			if (got.Update.Name == nil) != (testcase.when.Update.Name == nil) || got.Update.Description != nil {
				t.Errorf("unexpected update: %+v", got.Update)
			}
			if c := testcase.when.Update.Configuration; c != nil {
				if got.Update.Configuration == nil || *got.Update.Configuration != *c {
					t.Errorf("unexpected configuration: %+v", got.Update.Configuration)
				}
			}
		})
	}
}

func TestSearchRequest_Source(t *testing.T) {
	testee := &actmc.SearchRequest{
		Terms:      map[string]string{"owner_id": "alice", "name": "n"},
		Size:       5,
		SortField:  "created_time",
		Descending: true,
	}
	got := try.To(json.Marshal(testee.Source())).OrFatal(t)
	expected := `{"query":{"bool":{"filter":[{"term":{"name":"n"}},{"term":{"owner_id":"alice"}}]}},"size":5,"sort":[{"created_time":{"order":"desc"}}]}`
	if string(got) != expected {
		t.Errorf("unexpected source:\n===actual===\n%s\n===expected===\n%s", got, expected)
	}

	if q := (&actmc.SearchRequest{}).Source().EffectiveQuery(); q != (sdk.MatchAllQuery{}) {
		t.Errorf("unexpected query: %#v", q)
	}
}

func TestCreateResponse_JSON(t *testing.T) {
	got := try.To(json.Marshal(&actmc.CreateResponse{MemoryContainerId: "c1", Status: "created"})).OrFatal(t)
	if string(got) != `{"memory_container_id":"c1","status":"created"}` {
		t.Errorf("unexpected json: %s", got)
	}
}
