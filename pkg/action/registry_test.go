package action_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/opst/mlcommons/pkg/action"
	"github.com/opst/mlcommons/pkg/cmp"
	"github.com/opst/mlcommons/pkg/utils/try"
	"github.com/opst/mlcommons/pkg/wire"
)

type text struct{ value string }

func (t *text) WriteTo(out *wire.StreamOutput) error {
	out.WriteString(t.value)
	return nil
}

func readText(in *wire.StreamInput) (*text, error) {
	s, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	return &text{value: s}, nil
}

// pair has the same head as text, followed by a number.
type pair struct {
	value string
	n     int32
}

func (p *pair) WriteTo(out *wire.StreamOutput) error {
	out.WriteString(p.value)
	out.WriteVInt(p.n)
	return nil
}

func readPair(in *wire.StreamInput) (*pair, error) {
	s, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	n, err := in.ReadVInt()
	if err != nil {
		return nil, err
	}
	return &pair{value: s, n: n}, nil
}

func TestNodeAction(t *testing.T) {
	if got := action.NodeAction(action.ModelControllerDeploy); got != "cluster:admin/opensearch/ml/model_controllers/deploy[n]" {
		t.Errorf("unexpected name: %s", got)
	}
	if action.ControllerUndeploy != "cluster:admin/opensearch/ml/controllers/undeploy" {
		t.Errorf("unexpected name: %s", action.ControllerUndeploy)
	}
}

func TestRegistry(t *testing.T) {
	echo := action.Handle(readText, func(_ context.Context, req *text) (*text, error) {
		return &text{value: "echo: " + req.value}, nil
	})

	testee := action.NewRegistry()
	if err := testee.Register(action.ControllerGet, echo); err != nil {
		t.Fatal(err)
	}
	if err := testee.Register(action.ControllerCreate, echo); err != nil {
		t.Fatal(err)
	}
	if err := testee.Register(action.ControllerGet, echo); !errors.Is(err, action.ErrDuplicatedAction) {
		t.Errorf("duplicated registration: %v", err)
	}

	if !cmp.SliceEq(testee.Names(), []string{action.ControllerCreate, action.ControllerGet}) {
		t.Errorf("unexpected names: %v", testee.Names())
	}

	if _, ok := testee.Lookup(action.ControllerDelete); ok {
		t.Errorf("unregistered action is found")
	}

	h, ok := testee.Lookup(action.ControllerGet)
	if !ok {
		t.Fatal("registered action is not found")
	}
	payload := try.To(wire.Marshal(&text{value: "hello"}, wire.Current)).OrFatal(t)
	resp := try.To(h(context.Background(), wire.NewStreamInput(payload))).OrFatal(t)
	if got, ok := resp.(*text); !ok || got.value != "echo: hello" {
		t.Errorf("unexpected response: %#v", resp)
	}

	if _, err := h(context.Background(), wire.NewStreamInput(nil)); !errors.Is(err, wire.ErrMalformed) {
		t.Errorf("empty payload: %v", err)
	}
}

func TestFromActionRequest(t *testing.T) {
	t.Run("value of the type is returned as it is", func(t *testing.T) {
		req := &text{value: "a"}
		got := try.To(action.FromActionRequest(req, readText)).OrFatal(t)
		if got != req {
			t.Errorf("unexpected value: %#v", got)
		}
	})

	t.Run("compatible value is rebuilt", func(t *testing.T) {
		got := try.To(action.FromActionRequest[*text](&pair{value: "a", n: 3}, readText)).OrFatal(t)
		if got.value != "a" {
			t.Errorf("unexpected value: %#v", got)
		}
	})

	t.Run("incompatible value is an error naming the type", func(t *testing.T) {
		_, err := action.FromActionRequest[*pair](&text{value: "a"}, readPair)
		if err == nil {
			t.Fatal("no error")
		}
		if !strings.Contains(err.Error(), "failed to parse ActionRequest into *action_test.pair") {
			t.Errorf("unexpected message: %s", err)
		}
		if !errors.Is(err, wire.ErrMalformed) {
			t.Errorf("cause is lost: %v", err)
		}
	})

	t.Run("response", func(t *testing.T) {
		_, err := action.FromActionResponse[*pair](&text{value: "a"}, readPair)
		if err == nil || !strings.Contains(err.Error(), "failed to parse ActionResponse into *action_test.pair") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
