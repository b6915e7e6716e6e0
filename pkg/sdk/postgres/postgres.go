// Package postgres is a sdk.Delegate storing documents as jsonb rows in PostgreSQL.
//
// Each index is a table, created on the first write.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	kpool "github.com/opst/mlcommons/pkg/conn/db/postgres/pool"
	"github.com/opst/mlcommons/pkg/conn/db/postgres/scanner"
	xe "github.com/opst/mlcommons/pkg/errors"
	"github.com/opst/mlcommons/pkg/sdk"
)

const primaryTerm int64 = 1

const sequenceName = "mlcommons_seq_no"

type row struct {
	Id       string       `sql:"id"`
	TenantId string       `sql:"tenant_id"`
	Source   pgtype.JSONB `sql:"source"`
	SeqNo    int64        `sql:"seq_no"`
	Version  int64        `sql:"version"`
}

func (r row) source() (map[string]any, error) {
	source := map[string]any{}
	if r.Source.Status != pgtype.Present {
		return source, nil
	}
	if err := json.Unmarshal(r.Source.Bytes, &source); err != nil {
		return nil, xe.Wrap(err)
	}
	return source, nil
}

type Delegate struct {
	pool    kpool.Pool
	ensured sync.Map
}

var _ sdk.Delegate = &Delegate{}

func New(pool kpool.Pool) *Delegate {
	return &Delegate{pool: pool}
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9_]+`)

// TableName is the table for the index.
//
// Characters other than alphanumerics are replaced with underscore, and leading ones are trimmed.
// ".plugins-ml-controller" becomes "plugins_ml_controller".
func TableName(index string) string {
	name := unsafeChars.ReplaceAllString(strings.ToLower(index), "_")
	return strings.TrimLeft(name, "_")
}

func ident(index string) string {
	return pgx.Identifier{TableName(index)}.Sanitize()
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (d *Delegate) ensureTable(ctx context.Context, index string) error {
	table := TableName(index)
	if _, ok := d.ensured.Load(table); ok {
		return nil
	}
	if _, err := d.pool.Exec(
		ctx, `create sequence if not exists `+pgx.Identifier{sequenceName}.Sanitize(),
	); err != nil {
		return xe.Wrap(err)
	}
	if _, err := d.pool.Exec(ctx, `
		create table if not exists `+ident(index)+` (
			"id" text primary key,
			"tenant_id" text not null default '',
			"source" jsonb not null,
			"seq_no" bigint not null,
			"version" bigint not null
		)
	`); err != nil {
		return xe.Wrap(err)
	}
	d.ensured.Store(table, struct{}{})
	return nil
}

func jsonb(source map[string]any) (pgtype.JSONB, error) {
	raw, err := json.Marshal(source)
	if err != nil {
		return pgtype.JSONB{}, err
	}
	return pgtype.JSONB{Bytes: raw, Status: pgtype.Present}, nil
}

func notFound(id string) error {
	return sdk.NewStatusError(http.StatusNotFound, "document [%s] is not found", id)
}

func writeResult(index, id string, seqNo, version int64, result string) (*sdk.Parser, error) {
	return sdk.ParserOf(sdk.DocWriteResult{
		Index: index, Id: id, Version: version, SeqNo: seqNo, PrimaryTerm: primaryTerm, Result: result,
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
	body, err := jsonb(source)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	id := req.Id()
	if id == "" {
		id = uuid.NewString()
	}

	if err := d.ensureTable(ctx, req.Index()); err != nil {
		return nil, err
	}

	query := `
		insert into ` + ident(req.Index()) + ` as "t" ("id", "tenant_id", "source", "seq_no", "version")
		values ($1, $2, $3, nextval('` + sequenceName + `'), 1)
	`
	if req.OverwriteIfExists() {
		query += `
		on conflict ("id") do update
		set "source" = excluded."source", "tenant_id" = excluded."tenant_id",
			"seq_no" = excluded."seq_no", "version" = "t"."version" + 1
		`
		if isMultiTenancyEnabled {
			query += ` where "t"."tenant_id" = excluded."tenant_id"`
		}
	}
	query += ` returning "seq_no", "version"`

	var seqNo, version int64
	if err := d.pool.QueryRow(ctx, query, id, req.TenantId(), body).Scan(&seqNo, &version); err != nil {
		if isUniqueViolation(err) {
			return nil, sdk.NewStatusError(
				http.StatusConflict, "[%s]: version conflict, document already exists", id,
			)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, xe.Wrap(err)
	}

	result := sdk.ResultUpdated
	if version == 1 {
		result = sdk.ResultCreated
	}
	p, err := writeResult(req.Index(), id, seqNo, version, result)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return sdk.NewPutDataObjectResponse().Id(id).Parser(p).Build(), nil
}

func selectRow(ctx context.Context, conn scanner.Queryer, index string, id string, forUpdate bool) (*row, error) {
	query := `select "id", "tenant_id", "source", "seq_no", "version" from ` + ident(index) + ` where "id" = $1`
	if forUpdate {
		query += ` for update`
	}
	rows, err := scanner.New[row]().QueryAll(ctx, conn, query, id)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, xe.Wrap(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (d *Delegate) get(ctx context.Context, req *sdk.GetDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.GetDataObjectResponse, error) {
	r, err := selectRow(ctx, d.pool, req.Index(), req.Id(), false)
	if err != nil {
		return nil, err
	}

	result := sdk.GetResult{Index: req.Index(), Id: req.Id()}
	if r != nil {
		if isMultiTenancyEnabled && r.TenantId != req.TenantId() {
			return nil, notFound(req.Id())
		}
		source, err := r.source()
		if err != nil {
			return nil, err
		}
		result.Found = true
		result.SeqNo = r.SeqNo
		result.PrimaryTerm = primaryTerm
		result.Source = req.FetchSourceContext().Filter(source)
	}

	p, err := sdk.ParserOf(result)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return sdk.NewGetDataObjectResponse().Id(req.Id()).Parser(p).Build(), nil
}

func (d *Delegate) update(ctx context.Context, req *sdk.UpdateDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.UpdateDataObjectResponse, error) {
	patch, err := sdk.SourceOf(req.DataObject())
	if err != nil {
		return nil, err
	}

	var seqNo, version int64
	err = kpool.InTx(ctx, d.pool, func(tx kpool.Tx) error {
		current, err := selectRow(ctx, tx, req.Index(), req.Id(), true)
		if err != nil {
			return err
		}
		if current == nil || (isMultiTenancyEnabled && current.TenantId != req.TenantId()) {
			return notFound(req.Id())
		}
		if s := req.IfSeqNo(); s != nil && *s != current.SeqNo {
			return sdk.NewStatusError(
				http.StatusConflict, "[%s]: version conflict, required seqNo [%d], current seqNo [%d]",
				req.Id(), *s, current.SeqNo,
			)
		}
		if t := req.IfPrimaryTerm(); t != nil && *t != primaryTerm {
			return sdk.NewStatusError(
				http.StatusConflict, "[%s]: version conflict, required primary term [%d], current primary term [%d]",
				req.Id(), *t, primaryTerm,
			)
		}

		source, err := current.source()
		if err != nil {
			return err
		}
		merged := sdk.MergeSource(source, sdk.CopySource(patch))
		if isMultiTenancyEnabled {
			merged[sdk.TenantIdField] = current.TenantId
		}
		body, err := jsonb(merged)
		if err != nil {
			return xe.Wrap(err)
		}

		return xe.Wrap(tx.QueryRow(
			ctx,
			`update `+ident(req.Index())+`
			set "source" = $2, "seq_no" = nextval('`+sequenceName+`'), "version" = "version" + 1
			where "id" = $1
			returning "seq_no", "version"`,
			req.Id(), body,
		).Scan(&seqNo, &version))
	})
	if err != nil {
		return nil, err
	}

	p, err := writeResult(req.Index(), req.Id(), seqNo, version, sdk.ResultUpdated)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return sdk.NewUpdateDataObjectResponse().Id(req.Id()).Parser(p).Build(), nil
}

func (d *Delegate) delete(ctx context.Context, req *sdk.DeleteDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.DeleteDataObjectResponse, error) {
	query := `delete from ` + ident(req.Index()) + ` where "id" = $1`
	args := []interface{}{req.Id()}
	if isMultiTenancyEnabled {
		query += ` and "tenant_id" = $2`
		args = append(args, req.TenantId())
	}
	query += ` returning "version"`

	result := sdk.ResultDeleted
	var version int64
	if err := d.pool.QueryRow(ctx, query, args...).Scan(&version); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) && !isUndefinedTable(err) {
			return nil, xe.Wrap(err)
		}
		result = sdk.ResultNotFound
	} else {
		version += 1
	}

	p, err := writeResult(req.Index(), req.Id(), 0, version, result)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return sdk.NewDeleteDataObjectResponse().Id(req.Id()).Parser(p).Build(), nil
}

// search narrows rows by tenant in SQL, then evaluates the query on them.
func (d *Delegate) search(ctx context.Context, req *sdk.SearchDataObjectRequest, isMultiTenancyEnabled bool) (*sdk.SearchDataObjectResponse, error) {
	source := req.SearchSource()
	if isMultiTenancyEnabled {
		source = sdk.WithTenantFilter(source, req.TenantId())
	}

	docs := []sdk.LocalDocument{}
	for _, index := range req.Indices() {
		query := `select "id", "tenant_id", "source", "seq_no", "version" from ` + ident(index)
		args := []interface{}{}
		if isMultiTenancyEnabled {
			query += ` where "tenant_id" = $1`
			args = append(args, req.TenantId())
		}
		rows, err := scanner.New[row]().QueryAll(ctx, d.pool, query, args...)
		if err != nil {
			if isUndefinedTable(err) {
				continue
			}
			return nil, xe.Wrap(err)
		}
		for _, r := range rows {
			s, err := r.source()
			if err != nil {
				return nil, err
			}
			docs = append(docs, sdk.LocalDocument{Index: index, Id: r.Id, Source: s})
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
		return d.get(ctx, req, isMultiTenancyEnabled)
	})
}

func (d *Delegate) UpdateDataObjectAsync(ctx context.Context, req *sdk.UpdateDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.UpdateDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.UpdateDataObjectResponse, error) {
		return d.update(ctx, req, isMultiTenancyEnabled)
	})
}

func (d *Delegate) DeleteDataObjectAsync(ctx context.Context, req *sdk.DeleteDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.DeleteDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.DeleteDataObjectResponse, error) {
		return d.delete(ctx, req, isMultiTenancyEnabled)
	})
}

func (d *Delegate) BulkDataObjectAsync(ctx context.Context, req *sdk.BulkDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.BulkDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.BulkDataObjectResponse, error) {
		return sdk.BulkEach(ctx, req, func(ctx context.Context, r sdk.DataObjectRequest) (sdk.DataObjectResponse, error) {
			switch r := r.(type) {
			case *sdk.PutDataObjectRequest:
				return d.put(ctx, r, isMultiTenancyEnabled)
			case *sdk.UpdateDataObjectRequest:
				return d.update(ctx, r, isMultiTenancyEnabled)
			case *sdk.DeleteDataObjectRequest:
				return d.delete(ctx, r, isMultiTenancyEnabled)
			default:
				return nil, sdk.NewIllegalArgumentError("unsupported request in bulk: %T", r)
			}
		})
	})
}

func (d *Delegate) SearchDataObjectAsync(ctx context.Context, req *sdk.SearchDataObjectRequest, executor sdk.Executor, isMultiTenancyEnabled bool) *sdk.Future[*sdk.SearchDataObjectResponse] {
	return sdk.Supply(ctx, executor, func(ctx context.Context) (*sdk.SearchDataObjectResponse, error) {
		return d.search(ctx, req, isMultiTenancyEnabled)
	})
}
