// Package sqlengine runs queries over a doctable.Table with the embedded
// go-mysql-server engine.
//
// Every query gets a fresh in-memory database holding a single table. Column
// types are picked from the cells: integer columns become BIGINT, numeric
// columns DOUBLE, and everything else LONGTEXT in its doctable.FormatValue
// form. All-boolean columns hold the text 'true' and 'false' in a VARCHAR(5),
// so that flag = 'true' compares as written, and come back as booleans. The
// engine is read-only.
package sqlengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	gms "github.com/dolthub/go-mysql-server"
	"github.com/dolthub/go-mysql-server/memory"
	"github.com/dolthub/go-mysql-server/sql"
	"github.com/dolthub/go-mysql-server/sql/analyzer"
	"github.com/dolthub/go-mysql-server/sql/types"
	"github.com/dolthub/vitess/go/sqltypes"
	"github.com/shopspring/decimal"

	"github.com/andreyvit/doctable"
)

const DefaultDatabase = "doctable"

type Options struct {
	Database string
	Logger   *slog.Logger
}

// Engine implements doctable.QueryEngine. Safe for concurrent use.
type Engine struct {
	database string
	logger   *slog.Logger
}

var _ doctable.QueryEngine = (*Engine)(nil)

func New(opt Options) *Engine {
	if opt.Database == "" {
		opt.Database = DefaultDatabase
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &Engine{
		database: opt.Database,
		logger:   opt.Logger,
	}
}

type columnKind int

const (
	kindText columnKind = iota
	kindBool
	kindInt
	kindFloat
)

// boolType is used for boolean columns only, which lets results carry their
// boolean-ness through aliases and subqueries.
var boolType = types.MustCreateString(sqltypes.VarChar, 5, sql.Collation_Default)

func (k columnKind) sqlType() sql.Type {
	switch k {
	case kindBool:
		return boolType
	case kindInt:
		return types.Int64
	case kindFloat:
		return types.Float64
	default:
		return types.LongText
	}
}

func (e *Engine) Query(ctx context.Context, relation string, t *doctable.Table, query string) (*doctable.Table, error) {
	start := time.Now()

	db := memory.NewDatabase(e.database)
	pro := memory.NewDBProvider(db)
	sess := memory.NewSession(sql.NewBaseSession(), pro)
	sctx := sql.NewContext(ctx, sql.WithSession(sess))
	sctx.SetCurrentDatabase(e.database)

	if err := e.loadTable(sctx, db, relation, t); err != nil {
		return nil, fmt.Errorf("loading %s: %w", relation, err)
	}

	engine := gms.New(analyzer.NewBuilder(pro).Build(), &gms.Config{
		IsReadOnly: true,
	})
	defer engine.Close()

	sch, iter, _, err := engine.Query(sctx, query)
	if err != nil {
		return nil, err
	}
	var rows []sql.Row
	for {
		row, err := iter.Next(sctx)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			iter.Close(sctx)
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := iter.Close(sctx); err != nil {
		return nil, err
	}

	result := resultTable(sch, rows)
	e.logger.LogAttrs(ctx, slog.LevelDebug, "sqlengine: query", slog.String("sql", query), slog.Int("in", t.Len()), slog.Int("out", result.Len()), slog.Duration("dur", time.Since(start)))
	return result, nil
}

// loadTable registers t under relation. A table without columns is
// registered too, so that it can still be counted.
func (e *Engine) loadTable(sctx *sql.Context, db *memory.Database, relation string, t *doctable.Table) error {
	if err := checkColumnNames(t.Columns); err != nil {
		return err
	}

	kinds := make(map[string]columnKind, len(t.Columns))
	schema := make(sql.Schema, len(t.Columns))
	for i, col := range t.Columns {
		k := inferKind(t, col)
		kinds[col] = k
		schema[i] = &sql.Column{
			Name:     col,
			Type:     k.sqlType(),
			Nullable: true,
			Source:   relation,
		}
	}

	tbl := memory.NewTable(db, relation, sql.NewPrimaryKeySchema(schema), db.GetForeignKeyCollection())
	db.AddTable(relation, tbl)

	for i, row := range t.Rows {
		values := make([]any, len(t.Columns))
		for j, col := range t.Columns {
			values[j] = toSQL(row[col], kinds[col])
		}
		if err := tbl.Insert(sctx, sql.NewRow(values...)); err != nil {
			if len(t.Columns) == 0 {
				return errors.New("the table has no columns")
			}
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

// checkColumnNames rejects names the engine would treat as one column, since
// SQL column names are case-insensitive.
func checkColumnNames(columns []string) error {
	for i, col := range columns {
		for _, prev := range columns[:i] {
			if strings.EqualFold(prev, col) {
				return fmt.Errorf("columns %q and %q differ only in case; rename one of them first", prev, col)
			}
		}
	}
	return nil
}

func inferKind(t *doctable.Table, col string) columnKind {
	var bools, ints, floats, others int
	for _, row := range t.Rows {
		switch v := row[col].(type) {
		case nil:
		case bool:
			bools++
		case int, int8, int16, int32, int64, uint8, uint16, uint32:
			ints++
		case uint64:
			if v <= math.MaxInt64 {
				ints++
			} else {
				others++
			}
		case float32, float64:
			floats++
		default:
			others++
		}
	}
	switch {
	case others > 0:
		return kindText
	case bools > 0 && ints == 0 && floats == 0:
		return kindBool
	case bools > 0:
		return kindText
	case floats > 0:
		return kindFloat
	case ints > 0:
		return kindInt
	default:
		return kindText
	}
}

func toSQL(v any, k columnKind) any {
	if v == nil {
		return nil
	}
	switch k {
	case kindBool:
		return strconv.FormatBool(v.(bool))
	case kindInt:
		return toInt64(v)
	case kindFloat:
		if f, ok := v.(float64); ok {
			return f
		}
		if f, ok := v.(float32); ok {
			return float64(f)
		}
		return float64(toInt64(v))
	default:
		return doctable.FormatValue(v)
	}
}

func toInt64(v any) int64 {
	switch v := v.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	default:
		panic(fmt.Errorf("not an integer: %T", v))
	}
}

func resultTable(sch sql.Schema, rows []sql.Row) *doctable.Table {
	names := make([]string, len(sch))
	boolCols := make([]bool, len(sch))
	for i, col := range sch {
		names[i] = col.Name
		boolCols[i] = col.Type != nil && boolType.Equals(col.Type)
	}
	names = doctable.UniqueNames(names)

	t := &doctable.Table{
		Columns: names,
		Rows:    make([]doctable.Row, 0, len(rows)),
	}
	for _, row := range rows {
		r := make(doctable.Row, len(names))
		for i, name := range names {
			if i >= len(row) {
				break
			}
			if v := fromSQL(row[i], boolCols[i]); v != nil {
				r[name] = v
			}
		}
		t.Rows = append(t.Rows, r)
	}
	return t
}

// fromSQL maps engine values onto document values.
func fromSQL(v any, isBool bool) any {
	switch v := v.(type) {
	case nil:
		return nil
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v)
		}
		return float64(v)
	case float32:
		return float64(v)
	case decimal.Decimal:
		if v.IsInteger() && v.Abs().LessThanOrEqual(decimal.NewFromInt(math.MaxInt64)) {
			return v.IntPart()
		}
		return v.InexactFloat64()
	case []byte:
		return string(v)
	case string:
		if isBool && (v == "true" || v == "false") {
			return v == "true"
		}
		return v
	case bool, int64, float64, time.Time:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return v
	}
}
