package sdk_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/opst/mlcommons/pkg/cmp"
	"github.com/opst/mlcommons/pkg/sdk"
)

func TestBulkDataObjectRequest_Add(t *testing.T) {
	t.Run("requests without index inherit global index, and indices are collected", func(t *testing.T) {
		bulk := sdk.NewBulkDataObjectRequest().GlobalIndex("idx").Build()

		put := sdk.NewPutDataObjectRequest().Id("1").DataObject(map[string]any{"a": 1}).Build()
		del := sdk.NewDeleteDataObjectRequest().Index("other").Id("2").Build()

		if err := bulk.Add(put); err != nil {
			t.Fatal(err)
		}
		if err := bulk.Add(del); err != nil {
			t.Fatal(err)
		}

		if got := bulk.Indices(); !cmp.SliceEq(got, []string{"idx", "other"}) {
			t.Errorf("indices: %v", got)
		}
		requests := bulk.Requests()
		if got := requests[0].Index(); got != "idx" {
			t.Errorf("index of first request: %s", got)
		}
		if requests[0] != sdk.DataObjectRequest(put) {
			t.Errorf("request should be kept by reference")
		}
		if put.Index() != "idx" {
			t.Errorf("original request should be updated in place: %s", put.Index())
		}
		if got := requests[1].Index(); got != "other" {
			t.Errorf("index of second request: %s", got)
		}
	})

	t.Run("global tenant id always wins", func(t *testing.T) {
		bulk := sdk.NewBulkDataObjectRequest().GlobalIndex("idx").GlobalTenantId("global").Build()

		for name, req := range map[string]sdk.DataObjectRequest{
			"with tenant":    sdk.NewUpdateDataObjectRequest().Id("1").TenantId("own").Build(),
			"without tenant": sdk.NewPutDataObjectRequest().Id("2").Build(),
		} {
			if err := bulk.Add(req); err != nil {
				t.Fatal(err)
			}
			if got := req.TenantId(); got != "global" {
				t.Errorf("%s: tenant id = %s", name, got)
			}
		}
	})

	t.Run("empty global tenant id keeps tenant of each request", func(t *testing.T) {
		bulk := sdk.NewBulkDataObjectRequest().GlobalIndex("idx").Build()
		req := sdk.NewPutDataObjectRequest().TenantId("own").Build()
		if err := bulk.Add(req); err != nil {
			t.Fatal(err)
		}
		if got := req.TenantId(); got != "own" {
			t.Errorf("tenant id = %s", got)
		}
	})

	t.Run("read request is rejected", func(t *testing.T) {
		bulk := sdk.NewBulkDataObjectRequest().GlobalIndex("idx").Build()
		err := bulk.Add(sdk.NewGetDataObjectRequest().Id("1").Build())

		var argErr *sdk.IllegalArgumentError
		if !errors.As(err, &argErr) {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(bulk.Requests()) != 0 {
			t.Errorf("rejected request is added")
		}
	})

	t.Run("request without index is rejected when no global index", func(t *testing.T) {
		bulk := sdk.NewBulkDataObjectRequest().Build()
		err := bulk.Add(sdk.NewPutDataObjectRequest().Id("1").Build())

		var argErr *sdk.IllegalArgumentError
		if !errors.As(err, &argErr) {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(argErr.Message, "PutDataObjectRequest") {
			t.Errorf("message should name the request type: %s", argErr.Message)
		}
	})

	t.Run("snapshots are not affected by later additions", func(t *testing.T) {
		bulk := sdk.NewBulkDataObjectRequest().GlobalIndex("idx").Build()
		if err := bulk.Add(sdk.NewPutDataObjectRequest().Build()); err != nil {
			t.Fatal(err)
		}
		snapshot := bulk.Requests()
		indices := bulk.Indices()
		if err := bulk.Add(sdk.NewDeleteDataObjectRequest().Index("other").Build()); err != nil {
			t.Fatal(err)
		}
		if len(snapshot) != 1 || len(indices) != 1 {
			t.Errorf("snapshot changed: %v, %v", snapshot, indices)
		}
	})
}

func TestBulkDataObjectResponse_HasFailures(t *testing.T) {
	ok := func() sdk.DataObjectResponse {
		return sdk.NewPutDataObjectResponse().Id("1").Parser(sdk.NewParser([]byte(`{}`))).Build()
	}
	ng := func() sdk.DataObjectResponse {
		return sdk.NewDeleteDataObjectResponse().Id("2").Failed(errors.New("fake")).Build()
	}

	for name, testcase := range map[string]struct {
		when []sdk.DataObjectResponse
		then bool
	}{
		"empty":          {when: []sdk.DataObjectResponse{}, then: false},
		"all success":    {when: []sdk.DataObjectResponse{ok(), ok()}, then: false},
		"one failure":    {when: []sdk.DataObjectResponse{ok(), ng()}, then: true},
		"only a failure": {when: []sdk.DataObjectResponse{ng()}, then: true},
	} {
		t.Run(name, func(t *testing.T) {
			resp := sdk.NewBulkDataObjectResponse(testcase.when, 3, sdk.IngestNotUsed, nil)
			if got := resp.HasFailures(); got != testcase.then {
				t.Errorf("HasFailures = %v", got)
			}
			if resp.IngestTookInMillis() != -1 {
				t.Errorf("IngestTookInMillis = %d", resp.IngestTookInMillis())
			}
			if len(resp.Responses()) != len(testcase.when) {
				t.Errorf("responses: %d", len(resp.Responses()))
			}
		})
	}
}
