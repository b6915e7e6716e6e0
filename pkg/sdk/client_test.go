package sdk_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/opst/mlcommons/pkg/sdk"
	"github.com/opst/mlcommons/pkg/sdk/mock"
	"github.com/opst/mlcommons/pkg/utils/try"
)

func TestClient_Sync(t *testing.T) {
	t.Run("it returns the response of delegate", func(t *testing.T) {
		delegate := mock.New()
		expected := sdk.NewPutDataObjectResponse().Id("doc-1").Parser(sdk.NewParser([]byte(`{"result":"created"}`))).Build()
		delegate.Impl.Put = func(context.Context, *sdk.PutDataObjectRequest) (*sdk.PutDataObjectResponse, error) {
			return expected, nil
		}

		testee := sdk.NewClient(delegate)
		req := sdk.NewPutDataObjectRequest().Index("idx").DataObject(map[string]any{"a": 1}).Build()
		got := try.To(testee.PutDataObject(context.Background(), req)).OrFatal(t)

		if got != expected {
			t.Errorf("unexpected response: %+v", got)
		}
		if len(delegate.Calls.Put) != 1 || delegate.Calls.Put[0].Request != req || delegate.Calls.Put[0].IsMultiTenancyEnabled {
			t.Errorf("unexpected calls: %+v", delegate.Calls.Put)
		}
	})

	t.Run("illegal argument error from delegate is returned as it is", func(t *testing.T) {
		delegate := mock.New()
		expected := sdk.NewIllegalArgumentError("bad request")
		delegate.Impl.Put = func(context.Context, *sdk.PutDataObjectRequest) (*sdk.PutDataObjectResponse, error) {
			return nil, expected
		}

		testee := sdk.NewClient(delegate)
		_, err := testee.PutDataObject(context.Background(), sdk.NewPutDataObjectRequest().Index("idx").Build())
		if err != error(expected) {
			t.Errorf("unexpected error: %#v", err)
		}
	})

	t.Run("status error from delegate is returned as it is", func(t *testing.T) {
		delegate := mock.New()
		expected := sdk.NewStatusError(http.StatusNotFound, "not found")
		delegate.Impl.Get = func(context.Context, *sdk.GetDataObjectRequest) (*sdk.GetDataObjectResponse, error) {
			return nil, expected
		}

		testee := sdk.NewClient(delegate)
		_, err := testee.GetDataObject(context.Background(), sdk.NewGetDataObjectRequest().Index("idx").Id("1").Build())
		if err != error(expected) {
			t.Errorf("unexpected error: %#v", err)
		}
		if !sdk.IsNotFound(err) {
			t.Errorf("it should be not found")
		}
	})

	t.Run("unknown error from delegate is wrapped with EngineError", func(t *testing.T) {
		delegate := mock.New()
		delegate.Impl.Delete = func(context.Context, *sdk.DeleteDataObjectRequest) (*sdk.DeleteDataObjectResponse, error) {
			return nil, io.ErrUnexpectedEOF
		}

		testee := sdk.NewClient(delegate)
		_, err := testee.DeleteDataObject(context.Background(), sdk.NewDeleteDataObjectRequest().Index("idx").Id("1").Build())

		var engineErr *sdk.EngineError
		if !errors.As(err, &engineErr) {
			t.Fatalf("unexpected error: %#v", err)
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("cause is lost: %v", err)
		}
		var completionErr *sdk.CompletionError
		if errors.As(err, &completionErr) {
			t.Errorf("completion error leaks: %v", err)
		}
	})

	t.Run("panic in delegate is reported as error", func(t *testing.T) {
		delegate := mock.New()
		delegate.Impl.Update = func(context.Context, *sdk.UpdateDataObjectRequest) (*sdk.UpdateDataObjectResponse, error) {
			panic("fake panic")
		}

		testee := sdk.NewClient(delegate)
		_, err := testee.UpdateDataObject(context.Background(), sdk.NewUpdateDataObjectRequest().Index("idx").Id("1").Build())

		var engineErr *sdk.EngineError
		if !errors.As(err, &engineErr) {
			t.Fatalf("unexpected error: %#v", err)
		}
	})

	t.Run("when context is canceled, the cancellation is returned", func(t *testing.T) {
		delegate := mock.New()
		release := make(chan struct{})
		defer close(release)
		delegate.Impl.Search = func(context.Context, *sdk.SearchDataObjectRequest) (*sdk.SearchDataObjectResponse, error) {
			<-release
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		testee := sdk.NewClient(delegate)
		_, err := testee.SearchDataObject(ctx, sdk.NewSearchDataObjectRequest().Indices("idx").Build())
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestClient_MultiTenancy(t *testing.T) {
	t.Run("request without tenant id is rejected before reaching delegate", func(t *testing.T) {
		delegate := mock.New()
		testee := sdk.NewClient(delegate, sdk.WithMultiTenancy(true))

		for name, call := range map[string]func() error{
			"put": func() error {
				_, err := testee.PutDataObject(context.Background(), sdk.NewPutDataObjectRequest().Index("idx").Build())
				return err
			},
			"get": func() error {
				_, err := testee.GetDataObject(context.Background(), sdk.NewGetDataObjectRequest().Index("idx").Build())
				return err
			},
			"update": func() error {
				_, err := testee.UpdateDataObject(context.Background(), sdk.NewUpdateDataObjectRequest().Index("idx").Build())
				return err
			},
			"delete": func() error {
				_, err := testee.DeleteDataObject(context.Background(), sdk.NewDeleteDataObjectRequest().Index("idx").Build())
				return err
			},
			"search": func() error {
				_, err := testee.SearchDataObject(context.Background(), sdk.NewSearchDataObjectRequest().Indices("idx").Build())
				return err
			},
			"bulk": func() error {
				bulk := sdk.NewBulkDataObjectRequest().GlobalIndex("idx").Build()
				if err := bulk.Add(sdk.NewPutDataObjectRequest().Build()); err != nil {
					t.Fatal(err)
				}
				_, err := testee.BulkDataObject(context.Background(), bulk)
				return err
			},
		} {
			t.Run(name, func(t *testing.T) {
				err := call()
				var argErr *sdk.IllegalArgumentError
				if !errors.As(err, &argErr) || argErr.Message != sdk.TenantRequiredMessage {
					t.Errorf("unexpected error: %v", err)
				}
			})
		}
	})

	t.Run("request with tenant id is passed with multi-tenancy flag", func(t *testing.T) {
		delegate := mock.New()
		delegate.Impl.Delete = func(context.Context, *sdk.DeleteDataObjectRequest) (*sdk.DeleteDataObjectResponse, error) {
			return sdk.NewDeleteDataObjectResponse().Id("1").Parser(sdk.NewParser([]byte(`{}`))).Build(), nil
		}
		testee := sdk.NewClient(delegate, sdk.WithMultiTenancy(true), sdk.WithDefaultExecutor(sdk.DirectExecutor))

		req := sdk.NewDeleteDataObjectRequest().Index("idx").Id("1").TenantId("tenant-a").Build()
		try.To(testee.DeleteDataObject(context.Background(), req)).OrFatal(t)

		if len(delegate.Calls.Delete) != 1 || !delegate.Calls.Delete[0].IsMultiTenancyEnabled {
			t.Errorf("unexpected calls: %+v", delegate.Calls.Delete)
		}
	})
}

func TestClient_Async(t *testing.T) {
	t.Run("futures compose with Then", func(t *testing.T) {
		delegate := mock.New()
		delegate.Impl.Get = func(_ context.Context, req *sdk.GetDataObjectRequest) (*sdk.GetDataObjectResponse, error) {
			p := try.To(sdk.ParserOf(sdk.GetResult{
				Index: req.Index(), Id: req.Id(), Found: true,
				Source: map[string]any{"name": "model"},
			})).OrFatal(t)
			return sdk.NewGetDataObjectResponse().Id(req.Id()).Parser(p).Build(), nil
		}

		testee := sdk.NewClient(delegate)
		f := testee.GetDataObjectAsync(context.Background(), sdk.NewGetDataObjectRequest().Index("idx").Id("m1").Build())
		name := sdk.Then(f, nil, func(resp *sdk.GetDataObjectResponse) (string, error) {
			n, _ := resp.Source()["name"].(string)
			return n, nil
		})

		if got := try.To(name.Await(context.Background())).OrFatal(t); got != "model" {
			t.Errorf("unexpected value: %s", got)
		}
	})

	t.Run("failure propagates through Then without calling the mapper", func(t *testing.T) {
		expected := sdk.NewStatusError(http.StatusConflict, "conflict")
		f := sdk.Supply(context.Background(), sdk.DirectExecutor, func(context.Context) (int, error) {
			return 0, expected
		})
		called := false
		g := sdk.Then(f, sdk.DirectExecutor, func(int) (int, error) {
			called = true
			return 1, nil
		})

		_, err := g.Await(context.Background())
		if err := sdk.UnwrapAndConvert(err); err != error(expected) {
			t.Errorf("unexpected error: %v", err)
		}
		if called {
			t.Errorf("mapper is called")
		}
	})

	t.Run("Compose chains futures", func(t *testing.T) {
		f := sdk.Completed(20)
		g := sdk.Compose(f, nil, func(v int) *sdk.Future[int] {
			return sdk.Supply(context.Background(), nil, func(context.Context) (int, error) { return v + 22, nil })
		})
		if got := try.To(g.Await(context.Background())).OrFatal(t); got != 42 {
			t.Errorf("unexpected value: %d", got)
		}
	})

	t.Run("a future completes only once", func(t *testing.T) {
		f := sdk.NewFuture[int]()
		if !f.Complete(1) {
			t.Errorf("first completion should succeed")
		}
		if f.Complete(2) || f.Fail(errors.New("fake")) {
			t.Errorf("second completion should be ignored")
		}
		if got := try.To(f.Await(context.Background())).OrFatal(t); got != 1 {
			t.Errorf("unexpected value: %d", got)
		}
	})
}

func TestUnwrapAndConvert(t *testing.T) {
	argErr := sdk.NewIllegalArgumentError("arg")
	stateErr := sdk.NewIllegalStateError("state")
	root := errors.New("root")

	for name, testcase := range map[string]struct {
		when error
		then func(error) bool
	}{
		"nil": {
			when: nil,
			then: func(err error) bool { return err == nil },
		},
		"wrapped illegal argument": {
			when: &sdk.CompletionError{Cause: argErr},
			then: func(err error) bool { return err == error(argErr) },
		},
		"bare illegal state": {
			when: stateErr,
			then: func(err error) bool { return err == error(stateErr) },
		},
		"wrapped cancellation": {
			when: &sdk.CompletionError{Cause: context.Canceled},
			then: func(err error) bool { return err == context.Canceled },
		},
		"wrapped unknown": {
			when: &sdk.CompletionError{Cause: root},
			then: func(err error) bool {
				var e *sdk.EngineError
				return errors.As(err, &e) && e.Cause == root
			},
		},
		"doubly wrapped": {
			when: &sdk.CompletionError{Cause: &sdk.CompletionError{Cause: argErr}},
			then: func(err error) bool {
				var e *sdk.EngineError
				var c *sdk.CompletionError
				_, isCompletion := err.(*sdk.CompletionError)
				return errors.As(err, &e) && errors.As(err, &c) && !isCompletion
			},
		},
	} {
		t.Run(name, func(t *testing.T) {
			if got := sdk.UnwrapAndConvert(testcase.when); !testcase.then(got) {
				t.Errorf("unexpected result: %#v", got)
			}
		})
	}
}
