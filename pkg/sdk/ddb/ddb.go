// Package ddb is a sdk.Delegate storing documents in Amazon DynamoDB.
//
// A table is made per index. Its hash key is "tenant_id" and range key is "id".
// The document is held in the attribute "source".
package ddb

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	xe "github.com/opst/mlcommons/pkg/errors"
	"github.com/opst/mlcommons/pkg/sdk"
)

const (
	HashKey        = "tenant_id"
	RangeKey       = "id"
	SourceKey      = "source"
	SeqNoKey       = "_seq_no"
	PrimaryTermKey = "_primary_term"

	// DefaultTenant is the hash key of documents without tenant.
	DefaultTenant = "DEFAULT_TENANT"

	// LocalRegion is a pseudo region to connect to DynamoDB Local.
	LocalRegion   = "local"
	LocalEndpoint = "http://localhost:8000"
)

const primaryTerm int64 = 1

// API is the subset of *dynamodb.Client used by Delegate.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

var _ API = &dynamodb.Client{}

type Delegate struct {
	api    API
	search sdk.Delegate
}

var _ sdk.Delegate = &Delegate{}

type Option func(*Delegate) *Delegate

// WithSearchDelegate passes searches to another delegate, usually an OpenSearch
// cluster which indexes the tables.
//
// Without this, searches scan tables.
func WithSearchDelegate(search sdk.Delegate) Option {
	return func(d *Delegate) *Delegate {
		d.search = search
		return d
	}
}

func New(api API, options ...Option) *Delegate {
	d := &Delegate{api: api}
	for _, opt := range options {
		d = opt(d)
	}
	return d
}

// Connect creates a DynamoDB client in region.
//
// When region is LocalRegion, it connects to DynamoDB Local with dummy credentials.
// Otherwise, credentials are resolved by the default chain.
func Connect(ctx context.Context, region string, endpoint string) (*dynamodb.Client, error) {
	opts := []func(*config.LoadOptions) error{}
	if region == LocalRegion {
		opts = append(
			opts,
			config.WithRegion("us-east-1"),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")),
		)
		if endpoint == "" {
			endpoint = LocalEndpoint
		}
	} else {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// TableName is the table for the index: the index without dots.
func TableName(index string) string {
	return strings.ReplaceAll(index, ".", "")
}

func hashKeyOf(tenantId string) string {
	if tenantId == "" {
		return DefaultTenant
	}
	return tenantId
}

func keyOf(tenantId, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		HashKey:  &types.AttributeValueMemberS{Value: hashKeyOf(tenantId)},
		RangeKey: &types.AttributeValueMemberS{Value: id},
	}
}

type item struct {
	source map[string]any
	seqNo  int64
}

func decodeItem(attrs map[string]types.AttributeValue) (*item, error) {
	it := &item{source: map[string]any{}}
	if src, ok := attrs[SourceKey]; ok {
		if err := attributevalue.Unmarshal(src, &it.source); err != nil {
			return nil, xe.Wrap(err)
		}
	}
	if seq, ok := attrs[SeqNoKey]; ok {
		if err := attributevalue.Unmarshal(seq, &it.seqNo); err != nil {
			return nil, xe.Wrap(err)
		}
	}
	return it, nil
}

func encodeItem(tenantId, id string, source map[string]any, seqNo int64) (map[string]types.AttributeValue, error) {
	src, err := attributevalue.Marshal(source)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	attrs := keyOf(tenantId, id)
	attrs[SourceKey] = src
	attrs[SeqNoKey] = &types.AttributeValueMemberN{Value: itoa(seqNo)}
	attrs[PrimaryTermKey] = &types.AttributeValueMemberN{Value: itoa(primaryTerm)}
	return attrs, nil
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func isTableMissing(err error) bool {
	var rnf *types.ResourceNotFoundException
	return errors.As(err, &rnf)
}

func (d *Delegate) current(ctx context.Context, index, tenantId, id string) (*item, error) {
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(TableName(index)),
		Key:            keyOf(tenantId, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		if isTableMissing(err) {
			return nil, nil
		}
		return nil, xe.Wrap(err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return decodeItem(out.Item)
}

// write puts the item on condition that the stored one is still current (or absent).
func (d *Delegate) write(ctx context.Context, index, tenantId, id string, source map[string]any, current *item) (int64, error) {
	seqNo := int64(0)
	in := &dynamodb.PutItemInput{TableName: aws.String(TableName(index))}
	if current == nil {
		in.ConditionExpression = aws.String("attribute_not_exists(#id)")
		in.ExpressionAttributeNames = map[string]string{"#id": RangeKey}
	} else {
		seqNo = current.seqNo + 1
		in.ConditionExpression = aws.String("#seq = :seq")
		in.ExpressionAttributeNames = map[string]string{"#seq": SeqNoKey}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":seq": &types.AttributeValueMemberN{Value: itoa(current.seqNo)},
		}
	}
	attrs, err := encodeItem(tenantId, id, source, seqNo)
	if err != nil {
		return 0, err
	}
	in.Item = attrs

	if _, err := d.api.PutItem(ctx, in); err != nil {
		if isConditionFailed(err) {
			return 0, sdk.NewStatusError(http.StatusConflict, "[%s]: version conflict", id)
		}
		return 0, xe.Wrap(err)
	}
	return seqNo, nil
}

func writeResult(index, id string, seqNo int64, result string) (*sdk.Parser, error) {
	return sdk.ParserOf(sdk.DocWriteResult{
		Index: index, Id: id, Version: seqNo + 1, SeqNo: seqNo, PrimaryTerm: primaryTerm, Result: result,
	})
}

func (d *Delegate) put(ctx context.Context, req *sdk.PutDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.PutDataObjectResponse, error) {
	source, err := sdk.SourceOf(req.DataObject())
	if err != nil {
		return nil, err
	}
	source = sdk.CopySource(source)
	if isMultiTenancyEnabled {
		source[sdk.TenantIdField] = req.TenantId()
	}
	id := req.Id()
	if id == "" {
		id = uuid.NewString()
	}

	current, err := d.current(ctx, req.Index(), req.TenantId(), id)
	if err != nil {
		return nil, err
	}
	if current != nil && !req.OverwriteIfExists() {
		return nil, sdk.NewStatusError(http.StatusConflict, "[%s]: version conflict, document already exists", id)
	}

	seqNo, err := d.write(ctx, req.Index(), req.TenantId(), id, source, current)
	if err != nil {
		return nil, err
	}
	result := sdk.ResultCreated
	if current != nil {
		result = sdk.ResultUpdated
	}
	p, err := writeResult(req.Index(), id, seqNo, result)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return sdk.NewPutDataObjectResponse().Id(id).Parser(p).Build(), nil
}

func (d *Delegate) get(ctx context.Context, req *sdk.GetDataObjectRequest) (*sdk.GetDataObjectResponse, error) {
	current, err := d.current(ctx, req.Index(), req.TenantId(), req.Id())
	if err != nil {
		return nil, err
	}
	result := sdk.GetResult{Index: req.Index(), Id: req.Id()}
	if current != nil {
		result.Found = true
		result.SeqNo = current.seqNo
		result.PrimaryTerm = primaryTerm
		result.Source = req.FetchSourceContext().Filter(current.source)
	}
	p, err := sdk.ParserOf(result)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return sdk.NewGetDataObjectResponse().Id(req.Id()).Parser(p).Build(), nil
}

func (d *Delegate) update(ctx context.Context, req *sdk.UpdateDataObjectRequest) (*sdk.UpdateDataObjectResponse, error) {
	patch, err := sdk.SourceOf(req.DataObject())
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		current, err := d.current(ctx, req.Index(), req.TenantId(), req.Id())
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, sdk.NewStatusError(http.StatusNotFound, "document [%s] is not found", req.Id())
		}
		if s := req.IfSeqNo(); s != nil && *s != current.seqNo {
			return nil, sdk.NewStatusError(
				http.StatusConflict, "[%s]: version conflict, required seqNo [%d], current seqNo [%d]",
				req.Id(), *s, current.seqNo,
			)
		}
		if t := req.IfPrimaryTerm(); t != nil && *t != primaryTerm {
			return nil, sdk.NewStatusError(
				http.StatusConflict, "[%s]: version conflict, required primary term [%d], current primary term [%d]",
				req.Id(), *t, primaryTerm,
			)
		}

		merged := sdk.MergeSource(current.source, sdk.CopySource(patch))
		seqNo, err := d.write(ctx, req.Index(), req.TenantId(), req.Id(), merged, current)
		if err != nil {
			// someone else wrote in between.
			if sdk.IsConflict(err) && req.IfSeqNo() == nil && attempt < req.RetryOnConflict() {
				continue
			}
			return nil, err
		}
		p, err := writeResult(req.Index(), req.Id(), seqNo, sdk.ResultUpdated)
		if err != nil {
			return nil, xe.Wrap(err)
		}
		return sdk.NewUpdateDataObjectResponse().Id(req.Id()).Parser(p).Build(), nil
	}
}

func (d *Delegate) delete(ctx context.Context, req *sdk.DeleteDataObjectRequest) (*sdk.DeleteDataObjectResponse, error) {
	out, err := d.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(TableName(req.Index())),
		Key:          keyOf(req.TenantId(), req.Id()),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil && !isTableMissing(err) {
		return nil, xe.Wrap(err)
	}

	result := sdk.ResultNotFound
	seqNo := int64(0)
	if out != nil && len(out.Attributes) != 0 {
		old, err := decodeItem(out.Attributes)
		if err != nil {
			return nil, err
		}
		result = sdk.ResultDeleted
		seqNo = old.seqNo + 1
	}
	p, err := writeResult(req.Index(), req.Id(), seqNo, result)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return sdk.NewDeleteDataObjectResponse().Id(req.Id()).Parser(p).Build(), nil
}

func (d *Delegate) scan(ctx context.Context, req *sdk.SearchDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.SearchDataObjectResponse, error) {
	source := req.SearchSource()
	if isMultiTenancyEnabled {
		source = sdk.WithTenantFilter(source, req.TenantId())
	}

	docs := []sdk.LocalDocument{}
	for _, index := range req.Indices() {
		in := &dynamodb.ScanInput{TableName: aws.String(TableName(index))}
		for {
			out, err := d.api.Scan(ctx, in)
			if err != nil {
				if isTableMissing(err) {
					break
				}
				return nil, xe.Wrap(err)
			}
			for _, attrs := range out.Items {
				it, err := decodeItem(attrs)
				if err != nil {
					return nil, err
				}
				id := ""
				if err := attributevalue.Unmarshal(attrs[RangeKey], &id); err != nil {
					return nil, xe.Wrap(err)
				}
				docs = append(docs, sdk.LocalDocument{Index: index, Id: id, Source: it.source})
			}
			if len(out.LastEvaluatedKey) == 0 {
				break
			}
			in.ExclusiveStartKey = out.LastEvaluatedKey
		}
	}

	result, err := sdk.EvaluateSearch(docs, source)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	p, err := sdk.ParserOf(result)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return sdk.NewSearchDataObjectResponse(p), nil
}

func (d *Delegate) PutDataObjectAsync(ctx context.Context, req *sdk.PutDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.PutDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.PutDataObjectResponse, error) {
		return d.put(ctx, req, isMultiTenancyEnabled)
	})
}

func (d *Delegate) GetDataObjectAsync(ctx context.Context, req *sdk.GetDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.GetDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.GetDataObjectResponse, error) {
		return d.get(ctx, req)
	})
}

func (d *Delegate) UpdateDataObjectAsync(ctx context.Context, req *sdk.UpdateDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.UpdateDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.UpdateDataObjectResponse, error) {
		return d.update(ctx, req)
	})
}

func (d *Delegate) DeleteDataObjectAsync(ctx context.Context, req *sdk.DeleteDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.DeleteDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.DeleteDataObjectResponse, error) {
		return d.delete(ctx, req)
	})
}

func (d *Delegate) BulkDataObjectAsync(ctx context.Context, req *sdk.BulkDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.BulkDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.BulkDataObjectResponse, error) {
		return sdk.BulkEach(ctx, req, func(ctx context.Context, r sdk.DataObjectRequest) (sdk.DataObjectResponse, error) {
			switch r := r.(type) {
			case *sdk.PutDataObjectRequest:
				return d.put(ctx, r, isMultiTenancyEnabled)
			case *sdk.UpdateDataObjectRequest:
				return d.update(ctx, r)
			case *sdk.DeleteDataObjectRequest:
				return d.delete(ctx, r)
			default:
				return nil, sdk.NewIllegalArgumentError("unsupported request in bulk: %T", r)
			}
		})
	})
}

func (d *Delegate) SearchDataObjectAsync(ctx context.Context, req *sdk.SearchDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.SearchDataObjectResponse] {
	if d.search != nil {
		return d.search.SearchDataObjectAsync(ctx, req, executor, isMultiTenancyEnabled)
	}
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.SearchDataObjectResponse, error) {
		return d.scan(ctx, req, isMultiTenancyEnabled)
	})
}
