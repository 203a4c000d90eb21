package catalog

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"

	"github.com/SimonWaldherr/tsodbc/internal/convert"
	"github.com/SimonWaldherr/tsodbc/internal/diag"
	"github.com/SimonWaldherr/tsodbc/internal/query"
	"github.com/SimonWaldherr/tsodbc/internal/timestream"
)

// Special argument values of SQLTables.
const (
	AllCatalogs   = "%"
	AllSchemas    = "%"
	AllTableTypes = "%"
	TableType     = "TABLE"
)

func varchar(name string) types.ColumnInfo {
	return types.ColumnInfo{Name: aws.String(name), Type: &types.Type{ScalarType: types.ScalarTypeVarchar}}
}

func integer(name string) types.ColumnInfo {
	return types.ColumnInfo{Name: aws.String(name), Type: &types.Type{ScalarType: types.ScalarTypeInteger}}
}

func str(s string) types.Datum { return types.Datum{ScalarValue: aws.String(s)} }

func num(n int64) types.Datum { return types.Datum{ScalarValue: aws.String(strconv.FormatInt(n, 10))} }

func null() types.Datum { return types.Datum{NullValue: aws.Bool(true)} }

// TablesColumns are the result columns of SQLTables.
var TablesColumns = []types.ColumnInfo{
	varchar("TABLE_CAT"),
	varchar("TABLE_SCHEM"),
	varchar("TABLE_NAME"),
	varchar("TABLE_TYPE"),
	varchar("REMARKS"),
}

// ColumnsColumns are the result columns of SQLColumns.
var ColumnsColumns = []types.ColumnInfo{
	varchar("TABLE_CAT"),
	varchar("TABLE_SCHEM"),
	varchar("TABLE_NAME"),
	varchar("COLUMN_NAME"),
	integer("DATA_TYPE"),
	varchar("TYPE_NAME"),
	integer("COLUMN_SIZE"),
	integer("BUFFER_LENGTH"),
	integer("DECIMAL_DIGITS"),
	integer("NUM_PREC_RADIX"),
	integer("NULLABLE"),
	varchar("REMARKS"),
	varchar("COLUMN_DEF"),
	integer("SQL_DATA_TYPE"),
	integer("SQL_DATETIME_SUB"),
	integer("CHAR_OCTET_LENGTH"),
	integer("ORDINAL_POSITION"),
	varchar("IS_NULLABLE"),
}

func wantsTables(tableTypes string) bool {
	if tableTypes == "" || tableTypes == AllTableTypes {
		return true
	}
	for _, t := range strings.Split(tableTypes, ",") {
		t = strings.Trim(strings.TrimSpace(t), "'")
		if strings.EqualFold(t, TableType) {
			return true
		}
	}
	return false
}

// Tables builds the SQLTables result.
func (c *Catalog) Tables(ctx context.Context, catalog, schema, table, tableTypes string) (*query.Page, error) {
	page := &query.Page{Columns: TablesColumns}
	switch {
	case catalog == AllCatalogs && schema == "" && table == "":
		dbs, err := c.Databases(ctx)
		if err != nil {
			return nil, err
		}
		for _, db := range dbs {
			page.Rows = append(page.Rows, types.Row{Data: []types.Datum{str(db), null(), null(), null(), null()}})
		}
		return page, nil
	case schema == AllSchemas && catalog == "" && table == "":
		return page, nil
	case tableTypes == AllTableTypes && catalog == "" && schema == "" && table == "":
		page.Rows = append(page.Rows, types.Row{Data: []types.Datum{null(), null(), null(), str(TableType), null()}})
		return page, nil
	}
	if !wantsTables(tableTypes) || (schema != "" && schema != AllSchemas) {
		return page, nil
	}
	dbs, err := c.matchingDatabases(ctx, catalog)
	if err != nil {
		return nil, err
	}
	for _, db := range dbs {
		names, err := c.matchingTables(ctx, db, table)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			page.Rows = append(page.Rows, types.Row{Data: []types.Datum{str(db), null(), str(n), str(TableType), str("")}})
		}
	}
	return page, nil
}

// Columns builds the SQLColumns result. Column metadata comes from running
// DESCRIBE on every matching table.
func (c *Catalog) Columns(ctx context.Context, catalog, schema, table, column string) (*query.Page, error) {
	page := &query.Page{Columns: ColumnsColumns}
	if schema != "" && schema != AllSchemas {
		return page, nil
	}
	dbs, err := c.matchingDatabases(ctx, catalog)
	if err != nil {
		return nil, err
	}
	for _, db := range dbs {
		tables, err := c.matchingTables(ctx, db, table)
		if err != nil {
			return nil, err
		}
		for _, t := range tables {
			cols, err := c.describe(ctx, db, t)
			if err != nil {
				if diag.StateOf(err) == diag.StateTableNotFound {
					continue
				}
				return nil, err
			}
			for i, col := range cols {
				if !Match(column, col.name) {
					continue
				}
				page.Rows = append(page.Rows, columnRow(db, t, i+1, col))
			}
		}
	}
	return page, nil
}

type describedColumn struct {
	name      string
	typeName  string
	attribute string
}

// describe runs DESCRIBE "db"."table" through a query session.
func (c *Catalog) describe(ctx context.Context, db, table string) ([]describedColumn, error) {
	if c.transport == nil {
		return nil, diag.New(diag.StateNoConnection, "catalog: no transport")
	}
	s := query.New(c.transport, timestream.DescribeSQL(db, table), c.sessionOpts...)
	defer s.Close()
	if _, err := s.Execute(ctx); err != nil {
		return nil, err
	}
	var out []describedColumn
	for {
		row, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		var dc describedColumn
		for i, d := range row.Data {
			v := aws.ToString(d.ScalarValue)
			switch i {
			case 0:
				dc.name = v
			case 1:
				dc.typeName = v
			case 2:
				dc.attribute = v
			}
		}
		out = append(out, dc)
	}
	c.log.WithField("table", db+"."+table).WithField("columns", len(out)).Debug("described table")
	return out, nil
}

func columnRow(db, table string, ordinal int, col describedColumn) types.Row {
	d := convert.Describe(types.ColumnInfo{Name: aws.String(col.name), Type: convert.ParseTypeName(col.typeName)})
	nullable, isNullable := int64(convert.SQLNullable), "YES"
	if strings.EqualFold(col.attribute, "TIMESTAMP") {
		nullable, isNullable = int64(convert.SQLNoNulls), "NO"
	}
	digits, radix, sub, octets := null(), null(), null(), null()
	if d.Digits > 0 || d.SQLType == convert.SQLTypeTimestamp || d.SQLType == convert.SQLTypeTime {
		digits = num(int64(d.Digits))
	}
	if d.Radix > 0 {
		radix = num(int64(d.Radix))
	}
	if d.SubCode > 0 {
		sub = num(int64(d.SubCode))
	}
	if d.SQLType == convert.SQLVarchar {
		octets = num(d.OctetLength)
	}
	return types.Row{Data: []types.Datum{
		str(db),
		null(),
		str(table),
		str(col.name),
		num(int64(d.SQLType)),
		str(d.TypeName),
		num(int64(d.Size)),
		num(d.OctetLength),
		digits,
		radix,
		num(nullable),
		str(col.attribute),
		null(),
		num(int64(d.VerboseType)),
		sub,
		octets,
		num(int64(ordinal)),
		str(isNullable),
	}}
}
