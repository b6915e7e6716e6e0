package factory_test

import (
	"context"
	"errors"
	"testing"

	configs "github.com/opst/mlcommons/pkg/configs/node"
	"github.com/opst/mlcommons/pkg/sdk"
	"github.com/opst/mlcommons/pkg/sdk/ddb"
	"github.com/opst/mlcommons/pkg/sdk/factory"
	"github.com/opst/mlcommons/pkg/sdk/memory"
	"github.com/opst/mlcommons/pkg/sdk/remote"
)

func TestNew(t *testing.T) {
	type when struct {
		remote   configs.RemoteMetadataConfigMarshall
		postgres configs.PostgresConfigMarshall
	}
	type then struct {
		invalid bool
		check   func(*testing.T, sdk.Delegate)
	}

	isRemote := func(t *testing.T, d sdk.Delegate) {
		if _, ok := d.(*remote.Delegate); !ok {
			t.Errorf("unexpected delegate: %T", d)
		}
	}

	for name, testcase := range map[string]struct {
		when
		then
	}{
		"empty type without postgres is in-memory": {
			when{},
			then{check: func(t *testing.T, d sdk.Delegate) {
				if _, ok := d.(*memory.Delegate); !ok {
					t.Errorf("unexpected delegate: %T", d)
				}
			}},
		},
		"RemoteOpenSearch with endpoint": {
			when{remote: configs.RemoteMetadataConfigMarshall{
				Type: factory.RemoteOpenSearch, Endpoint: "http://localhost:9200", Username: "admin", Password: "admin",
			}},
			then{check: isRemote},
		},
		"RemoteOpenSearch without endpoint": {
			when{remote: configs.RemoteMetadataConfigMarshall{Type: factory.RemoteOpenSearch}},
			then{invalid: true},
		},
		"AWSOpenSearchService with endpoint and region": {
			when{remote: configs.RemoteMetadataConfigMarshall{
				Type: factory.AWSOpenSearchService, Endpoint: "https://search.example.com", Region: "us-west-2",
			}},
			then{check: isRemote},
		},
		"AWSOpenSearchService without region": {
			when{remote: configs.RemoteMetadataConfigMarshall{
				Type: factory.AWSOpenSearchService, Endpoint: "https://search.example.com",
			}},
			then{invalid: true},
		},
		"AWSDynamoDB with endpoint and region": {
			when{remote: configs.RemoteMetadataConfigMarshall{
				Type: factory.AWSDynamoDB, Endpoint: "https://search.example.com", Region: ddb.LocalRegion,
			}},
			then{check: func(t *testing.T, d sdk.Delegate) {
				if _, ok := d.(*ddb.Delegate); !ok {
					t.Errorf("unexpected delegate: %T", d)
				}
			}},
		},
		"AWSDynamoDB without endpoint": {
			when{remote: configs.RemoteMetadataConfigMarshall{Type: factory.AWSDynamoDB, Region: "us-west-2"}},
			then{invalid: true},
		},
		"unknown type": {
			when{remote: configs.RemoteMetadataConfigMarshall{Type: "Cassandra"}},
			then{invalid: true},
		},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv("AWS_ACCESS_KEY_ID", "dummy")
			t.Setenv("AWS_SECRET_ACCESS_KEY", "dummy")

			rm := configs.TrySeal[*configs.RemoteMetadataConfig](&testcase.when.remote)
			pg := configs.TrySeal[*configs.PostgresConfig](&testcase.when.postgres)

			delegate, closer, err := factory.New(context.Background(), rm, pg)
			if testcase.then.invalid {
				if !errors.Is(err, factory.ErrInvalidRemoteMetadata) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer closer()
			testcase.then.check(t, delegate)
		})
	}
}
