package testenv

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v4"
	kpool "github.com/opst/mlcommons/pkg/conn/db/postgres/pool"
)

// EnvPostgresURL names the environment variable for the database used in tests.
const EnvPostgresURL = "MLCOMMONS_TEST_PG_URL"

// GetPool connects to the database for tests.
//
// The test is skipped when EnvPostgresURL is not set.
// tables are dropped after t.
func GetPool(ctx context.Context, t *testing.T, tables ...string) kpool.Pool {
	t.Helper()
	url := os.Getenv(EnvPostgresURL)
	if url == "" {
		t.Skipf("%s is not set", EnvPostgresURL)
	}

	pool, err := kpool.Connect(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		defer pool.Close()
		for _, table := range tables {
			if _, err := pool.Exec(context.Background(), `drop table if exists `+pgx.Identifier{table}.Sanitize()); err != nil {
				t.Errorf("failed to drop %s: %s", table, err)
			}
		}
	})
	return pool
}
