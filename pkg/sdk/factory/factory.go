// Package factory builds a sdk.Delegate from node configuration.
package factory

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	configs "github.com/opst/mlcommons/pkg/configs/node"
	kpool "github.com/opst/mlcommons/pkg/conn/db/postgres/pool"
	xe "github.com/opst/mlcommons/pkg/errors"
	"github.com/opst/mlcommons/pkg/sdk"
	"github.com/opst/mlcommons/pkg/sdk/ddb"
	"github.com/opst/mlcommons/pkg/sdk/memory"
	"github.com/opst/mlcommons/pkg/sdk/postgres"
	"github.com/opst/mlcommons/pkg/sdk/remote"
)

const (
	RemoteOpenSearch     = "RemoteOpenSearch"
	AWSOpenSearchService = "AWSOpenSearchService"
	AWSDynamoDB          = "AWSDynamoDB"
)

var ErrInvalidRemoteMetadata = errors.New("remote metadata configuration is invalid")

// New builds the delegate selected by configuration.
//
// - RemoteOpenSearch: an OpenSearch cluster at endpoint, with basic auth if given.
//
// - AWSOpenSearchService: an Amazon OpenSearch Service domain at endpoint, in region.
//
// - AWSDynamoDB: DynamoDB tables in region for documents, and the domain at endpoint for searches.
//
// - empty: a postgres database when its url is given. Otherwise, documents are kept in memory.
//
// The returned function releases resources held by the delegate.
func New(ctx context.Context, rm *configs.RemoteMetadataConfig, pg *configs.PostgresConfig) (sdk.Delegate, func(), error) {
	noop := func() {}

	switch rm.Type() {
	case RemoteOpenSearch:
		if rm.Endpoint() == "" {
			return nil, nil, fmt.Errorf("%w: %s requires endpoint", ErrInvalidRemoteMetadata, rm.Type())
		}
		client, err := remote.Connect(rm.Endpoint(), rm.Username(), rm.Password())
		if err != nil {
			return nil, nil, err
		}
		return remote.New(client), noop, nil

	case AWSOpenSearchService:
		search, err := connectAWS(ctx, rm)
		if err != nil {
			return nil, nil, err
		}
		return search, noop, nil

	case AWSDynamoDB:
		search, err := connectAWS(ctx, rm)
		if err != nil {
			return nil, nil, err
		}
		api, err := ddb.Connect(ctx, rm.Region(), "")
		if err != nil {
			return nil, nil, err
		}
		return ddb.New(api, ddb.WithSearchDelegate(search)), noop, nil

	case "":
		if pg.URL() == "" {
			return memory.New(), noop, nil
		}
		pool, err := kpool.Connect(ctx, pg.URL())
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(pool), pool.Close, nil
	}

	return nil, nil, fmt.Errorf("%w: unknown type: %s", ErrInvalidRemoteMetadata, rm.Type())
}

func connectAWS(ctx context.Context, rm *configs.RemoteMetadataConfig) (*remote.Delegate, error) {
	if rm.Endpoint() == "" || rm.Region() == "" {
		return nil, fmt.Errorf("%w: %s requires endpoint and region", ErrInvalidRemoteMetadata, rm.Type())
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(rm.Region()))
	if err != nil {
		return nil, xe.Wrap(err)
	}
	service := rm.ServiceName()
	if service == "" || rm.Type() == AWSDynamoDB {
		service = remote.AWSServiceName
	}
	client, err := remote.ConnectAWS(rm.Endpoint(), cfg, service)
	if err != nil {
		return nil, err
	}
	return remote.New(client), nil
}
