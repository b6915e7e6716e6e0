package filewatch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opst/mlcommons/pkg/utils/filewatch"
)

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context is not canceled")
	}
}

func TestUntilModifyContext(t *testing.T) {
	for name, modify := range map[string]func(t *testing.T, file string){
		"written": func(t *testing.T, file string) {
			if err := os.WriteFile(file, []byte("cluster:\n  name: b\n"), 0o600); err != nil {
				t.Fatal(err)
			}
		},
		"removed": func(t *testing.T, file string) {
			if err := os.Remove(file); err != nil {
				t.Fatal(err)
			}
		},
		"renamed": func(t *testing.T, file string) {
			if err := os.Rename(file, file+".old"); err != nil {
				t.Fatal(err)
			}
		},
	} {
		t.Run("when the file is "+name+", it cancels context", func(t *testing.T) {
			file := filepath.Join(t.TempDir(), "node.yaml")
			if err := os.WriteFile(file, []byte("cluster:\n  name: a\n"), 0o600); err != nil {
				t.Fatal(err)
			}

			ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), file)
			if err != nil {
				t.Fatal(err)
			}
			defer cancel()
			if ctx.Err() != nil {
				t.Fatalf("context is done before modification: %v", ctx.Err())
			}

			modify(t, file)
			waitDone(t, ctx)
			if cause := context.Cause(ctx); !errors.Is(cause, filewatch.ErrModified) {
				t.Errorf("unexpected cause: %v", cause)
			}
		})
	}

	t.Run("it fails for missing file", func(t *testing.T) {
		_, _, err := filewatch.UntilModifyContext(context.Background(), filepath.Join(t.TempDir(), "missing"))
		if err == nil {
			t.Error("expected error, but nil")
		}
	})

	t.Run("cancel does not report modification", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "node.yaml")
		if err := os.WriteFile(file, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), file)
		if err != nil {
			t.Fatal(err)
		}
		cancel()
		waitDone(t, ctx)
		if cause := context.Cause(ctx); errors.Is(cause, filewatch.ErrModified) {
			t.Errorf("unexpected cause: %v", cause)
		}
	})
}
