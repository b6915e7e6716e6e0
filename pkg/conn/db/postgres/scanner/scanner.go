package scanner

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

type Queryer interface {
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
}

// type-safe scanner for pgx.Rows into structs
//
// # example
//
//	type Row struct {
//		Id     string       `sql:"id"`
//		Source pgtype.JSONB `sql:"source"`
//	}
//
//	rows, err := scanner.New[Row]().QueryAll(ctx, conn, `select "id", "source" from "t"`)
//
// # mapping rule
//
// columns are mapped into
//
//  1. field with tag `sql:"column_name"`
//  2. or, field named as same as the column name
//  3. or, field which has a name in CamelCase version of column name ("seq_no" -> "SeqNo").
type Scanner[T any] interface {
	// scan all rows in pgx.Rows and convert to []T
	ScanAll(pgx.Rows) ([]T, error)

	// scan all rows in response of query.
	QueryAll(context.Context, Queryer, string, ...interface{}) ([]T, error)
}

type scanner[T any] struct {
	byTag  map[string]int
	byName map[string]int
}

// New creates a Scanner for struct T.
//
// It panics when T is not a struct.
func New[T any]() Scanner[T] {
	t := reflect.TypeOf(*new(T))
	if t.Kind() != reflect.Struct {
		panic(fmt.Errorf("scanner: %s is not a struct", t))
	}

	s := &scanner[T]{byTag: map[string]int{}, byName: map[string]int{}}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		s.byName[f.Name] = i
		if tag, ok := f.Tag.Lookup("sql"); ok {
			s.byTag[tag] = i
		}
	}
	return s
}

func camel(s string) string {
	b := &strings.Builder{}
	for _, ss := range strings.Split(s, "_") {
		if len(ss) == 0 {
			b.WriteString("_")
			continue
		}
		b.WriteString(strings.ToUpper(ss[0:1]))
		b.WriteString(ss[1:])
	}
	return b.String()
}

func (s *scanner[T]) fieldOf(col string) (int, bool) {
	if i, ok := s.byTag[col]; ok {
		return i, true
	}
	if i, ok := s.byName[col]; ok {
		return i, true
	}
	i, ok := s.byName[camel(col)]
	return i, ok
}

func (s *scanner[T]) ScanAll(rows pgx.Rows) ([]T, error) {
	columns := rows.FieldDescriptions()
	fields := make([]int, 0, len(columns))
	for _, fd := range columns {
		col := string(fd.Name)
		i, ok := s.fieldOf(col)
		if !ok {
			return nil, fmt.Errorf(
				`field for column "%s" (%s) is not found in type "%T"`,
				col, oidName(fd.DataTypeOID), *new(T),
			)
		}
		fields = append(fields, i)
	}

	ret := []T{}
	for rows.Next() {
		elem := new(T)
		re := reflect.ValueOf(elem).Elem()

		dest := make([]interface{}, len(fields))
		for nth, i := range fields {
			dest[nth] = re.Field(i).Addr().Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		ret = append(ret, *elem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *scanner[T]) QueryAll(ctx context.Context, conn Queryer, q string, params ...interface{}) ([]T, error) {
	rows, err := conn.Query(ctx, q, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.ScanAll(rows)
}

func oidName(oid uint32) string {
	switch oid {
	case pgtype.BoolOID:
		return "bool"
	case pgtype.Int8OID:
		return "int8"
	case pgtype.Int4OID:
		return "int4"
	case pgtype.TextOID:
		return "text"
	case pgtype.VarcharOID:
		return "varchar"
	case pgtype.JSONOID:
		return "json"
	case pgtype.JSONBOID:
		return "jsonb"
	case pgtype.TimestamptzOID:
		return "timestamptz"
	}
	return fmt.Sprintf("oid(%d)", oid)
}
