package tabular

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
)

// parquetBatchRows is the row batch size for Parquet reads.
const parquetBatchRows = 256

// loadParquet reads an entire Parquet file. Column dtypes come from the
// file schema rather than inference.
func (l *Loader) loadParquet(ctx context.Context, path string, size int64) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pf, err := parquet.OpenFile(f, size)
	if err != nil {
		return nil, err
	}

	fields := pf.Schema().Fields()
	dtypes := make([]DType, len(fields))
	cells := make([][]any, len(fields))

	for i, field := range fields {
		dtypes[i] = parquetDType(field.Type())
	}

	buf := make([]parquet.Row, parquetBatchRows)

	for _, group := range pf.RowGroups() {
		rows := group.Rows()

		if err := readRowGroup(ctx, rows, fields, dtypes, cells, buf); err != nil {
			_ = rows.Close()
			return nil, err
		}

		if err := rows.Close(); err != nil {
			return nil, err
		}
	}

	columns := make([]*Column, len(fields))
	for i, field := range fields {
		columns[i] = newColumn(field.Name(), dtypes[i], cells[i])
	}

	table, err := NewTable(columns...)
	if err != nil {
		return nil, fmt.Errorf("assemble table: %w", err)
	}

	return table, nil
}

func readRowGroup(
	ctx context.Context,
	rows parquet.Rows,
	fields []parquet.Field,
	dtypes []DType,
	cells [][]any,
	buf []parquet.Row,
) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := rows.ReadRows(buf)

		for _, row := range buf[:n] {
			for _, v := range row {
				col := v.Column()
				if col < 0 || col >= len(fields) {
					continue
				}

				cells[col] = append(cells[col], parquetCell(dtypes[col], fields[col], v))
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}
	}
}

// parquetDType maps a Parquet leaf type onto a column dtype, preferring
// the logical type annotation over the physical kind.
func parquetDType(t parquet.Type) DType {
	if lt := t.LogicalType(); lt != nil {
		switch {
		case lt.Timestamp != nil, lt.Date != nil:
			return DTypeTimestamp
		case lt.UTF8 != nil, lt.Json != nil, lt.Enum != nil, lt.UUID != nil:
			return DTypeString
		case lt.Integer != nil:
			return DTypeInt
		}
	}

	switch t.Kind() {
	case parquet.Boolean:
		return DTypeBool
	case parquet.Int32, parquet.Int64:
		return DTypeInt
	case parquet.Float, parquet.Double:
		return DTypeFloat
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return DTypeString
	default:
		return DTypeString
	}
}

func parquetCell(dtype DType, field parquet.Field, v parquet.Value) any {
	if v.IsNull() {
		return nil
	}

	switch dtype {
	case DTypeBool:
		return v.Boolean()
	case DTypeInt:
		if v.Kind() == parquet.Int32 {
			return int64(v.Int32())
		}

		return v.Int64()
	case DTypeFloat:
		if v.Kind() == parquet.Float {
			return float64(v.Float())
		}

		return v.Double()
	case DTypeTimestamp:
		return parquetTime(field.Type(), v)
	case DTypeString:
		return v.String()
	default:
		return v.String()
	}
}

// parquetTime converts a timestamp or date leaf value using the unit
// declared by the logical type. Timestamps default to microseconds.
func parquetTime(t parquet.Type, v parquet.Value) time.Time {
	lt := t.LogicalType()

	if lt != nil && lt.Date != nil {
		return time.Unix(int64(v.Int32())*86400, 0).UTC()
	}

	if lt != nil && lt.Timestamp != nil {
		unit := lt.Timestamp.Unit

		switch {
		case unit.Millis != nil:
			return time.UnixMilli(v.Int64()).UTC()
		case unit.Nanos != nil:
			return time.Unix(0, v.Int64()).UTC()
		}
	}

	return time.UnixMicro(v.Int64()).UTC()
}
