package try_test

import (
	"errors"
	"strconv"
	"testing"

	"github.com/opst/mlcommons/pkg/utils/try"
)

type fataler struct {
	fatal  [][]any
	helper uint
}

func (f *fataler) Fatal(args ...any) {
	f.fatal = append(f.fatal, args)
}

func (f *fataler) Helper() {
	f.helper += 1
}

func TestTry(t *testing.T) {
	t.Run("when it does not have error, it gives the value", func(t *testing.T) {
		ftl := &fataler{}
		testee := try.To(42, nil)

		if got := testee.OrFatal(ftl); got != 42 {
			t.Errorf("OrFatal: %d", got)
		}
		if got := testee.OrDefault(1); got != 42 {
			t.Errorf("OrDefault: %d", got)
		}
		if len(ftl.fatal) != 0 {
			t.Errorf("Fatal is called: %v", ftl.fatal)
		}
	})

	t.Run("when it has error, it calls Helper then Fatal", func(t *testing.T) {
		ftl := &fataler{}
		expectedErr := errors.New("fake")
		testee := try.To(42, expectedErr)

		if got := testee.OrFatal(ftl); got != 0 {
			t.Errorf("OrFatal: %d", got)
		}
		if got := testee.OrDefault(1); got != 1 {
			t.Errorf("OrDefault: %d", got)
		}
		if ftl.helper != 1 || len(ftl.fatal) != 1 || ftl.fatal[0][0] != expectedErr {
			t.Errorf("unexpected fataler state: %+v", ftl)
		}
	})

	t.Run("Map and TryMap propagate error", func(t *testing.T) {
		got, err := try.TryMap(
			try.Map(try.To(21, nil), func(v int) int { return v * 2 }),
			func(v int) (string, error) { return strconv.Itoa(v), nil },
		).Get()
		if err != nil || got != "42" {
			t.Errorf("unexpected: (%s, %v)", got, err)
		}

		expectedErr := errors.New("fake")
		_, err = try.Map(try.To(0, expectedErr), func(v int) int { return v }).Get()
		if !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
