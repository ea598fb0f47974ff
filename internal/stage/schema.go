package stage

import (
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// column is one staging-table column derived from the Parquet schema.
type column struct {
	Name    string
	SQLType string
}

// tableColumns derives staging columns from a flat Parquet schema. Nested
// schemas are rejected; the quality checks operate on flat relations only.
func tableColumns(schema *parquet.Schema) ([]column, error) {
	fields := schema.Fields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("parquet schema has no columns")
	}

	cols := make([]column, 0, len(fields))
	for _, f := range fields {
		if !f.Leaf() {
			return nil, fmt.Errorf("nested parquet schemas are not supported (column %q)", f.Name())
		}
		cols = append(cols, column{
			Name:    f.Name(),
			SQLType: sqlType(f.Type().Kind()),
		})
	}
	return cols, nil
}

// sqlType maps a Parquet physical kind to a staging column type. Staging is
// lossless enough for validation: logical timestamps stay as their integer
// representation, strings and anything exotic land as text.
func sqlType(kind parquet.Kind) string {
	switch kind {
	case parquet.Boolean:
		return "boolean"
	case parquet.Int32:
		return "integer"
	case parquet.Int64:
		return "bigint"
	case parquet.Float:
		return "real"
	case parquet.Double:
		return "double precision"
	default:
		return "text"
	}
}

// goValue converts a Parquet value into a Go value pgx can encode for the
// matching staging column type.
func goValue(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return v.Int32()
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return v.Float()
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}

// sameColumns reports whether two derived column sets agree in name and order.
func sameColumns(a, b []column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}
