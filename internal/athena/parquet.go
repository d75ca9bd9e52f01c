// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package athena

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"

	"github.com/pdiddy/report-engine/internal/table"
)

// readBatch is the number of rows read from a row group at a time.
const readBatch = 256

// julianUnixEpoch is the Julian day number of 1970-01-01, the base of
// INT96 timestamps.
const julianUnixEpoch = 2440588

// readParquetPrefix loads every parquet object under prefix into one table.
// Zero-length objects and folder markers are skipped. No objects yields an
// empty table.
func (r *Runner) readParquetPrefix(ctx context.Context, prefix string) (*table.Table, error) {
	objs, err := r.listObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := table.New()
	for _, o := range objs {
		key := aws.ToString(o.Key)
		if aws.ToInt64(o.Size) == 0 || strings.HasSuffix(key, "/") || strings.HasSuffix(key, "_$folder$") {
			continue
		}
		got, err := r.s3.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(r.cfg.ResultsBucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("getting %s: %w", key, err)
		}
		data, err := io.ReadAll(got.Body)
		got.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		t, err := ReadParquet(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", key, err)
		}
		if len(out.Columns) == 0 {
			out.Columns = t.Columns
		}
		if err := out.Append(t); err != nil {
			return nil, fmt.Errorf("merging %s: %w", key, err)
		}
	}
	return out, nil
}

// leaf describes how one parquet leaf column maps to a table column.
type leaf struct {
	kind    table.Kind
	phys    parquet.Kind
	logical *format.LogicalType
}

// ReadParquet decodes a flat parquet file into a table. Nested columns are
// named by their dotted path. Timestamps (INT96 or annotated INT64) and
// dates become time.Time values in UTC; decimals become float64.
func ReadParquet(r io.ReaderAt, size int64) (*table.Table, error) {
	f, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, err
	}
	schema := f.Schema()
	paths := schema.Columns()

	leaves := make([]leaf, len(paths))
	cols := make([]table.Column, len(paths))
	for _, path := range paths {
		lc, ok := schema.Lookup(path...)
		if !ok {
			return nil, fmt.Errorf("column %s not in schema", strings.Join(path, "."))
		}
		typ := lc.Node.Type()
		l := leaf{phys: typ.Kind(), logical: typ.LogicalType()}
		l.kind = kindOf(l)
		leaves[lc.ColumnIndex] = l
		cols[lc.ColumnIndex] = table.Column{Name: strings.Join(path, "."), Type: l.kind}
	}

	t := table.New(cols...)
	buf := make([]parquet.Row, readBatch)
	for _, rg := range f.RowGroups() {
		if err := readRowGroup(t, rg, leaves, buf); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func readRowGroup(t *table.Table, rg parquet.RowGroup, leaves []leaf, buf []parquet.Row) error {
	rows := rg.Rows()
	defer rows.Close()
	for {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			vals := make([]any, len(leaves))
			for _, v := range row {
				c := v.Column()
				if c < 0 || c >= len(leaves) {
					continue
				}
				vals[c] = convertValue(v, leaves[c])
			}
			if err := t.AddRow(vals...); err != nil {
				return err
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// kindOf picks the table kind for a parquet leaf.
func kindOf(l leaf) table.Kind {
	lt := l.logical
	if lt != nil {
		switch {
		case lt.Timestamp != nil, lt.Date != nil:
			return table.Timestamp
		case lt.Decimal != nil:
			return table.Float64
		case lt.UTF8 != nil, lt.Enum != nil, lt.Json != nil, lt.UUID != nil:
			return table.String
		}
	}
	switch l.phys {
	case parquet.Boolean:
		return table.Bool
	case parquet.Int32:
		return table.Int32
	case parquet.Int64:
		return table.Int64
	case parquet.Int96:
		return table.Timestamp
	case parquet.Float:
		return table.Float32
	case parquet.Double:
		return table.Float64
	default:
		return table.String
	}
}

// convertValue turns one parquet value into a table cell.
func convertValue(v parquet.Value, l leaf) any {
	if v.IsNull() {
		return nil
	}
	lt := l.logical
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		switch {
		case lt != nil && lt.Date != nil:
			return time.Unix(int64(v.Int32())*86400, 0).UTC()
		case lt != nil && lt.Decimal != nil:
			return scaled(float64(v.Int32()), lt.Decimal.Scale)
		}
		return v.Int32()
	case parquet.Int64:
		switch {
		case lt != nil && lt.Timestamp != nil:
			return timestampOf(v.Int64(), lt.Timestamp.Unit)
		case lt != nil && lt.Decimal != nil:
			return scaled(float64(v.Int64()), lt.Decimal.Scale)
		}
		return v.Int64()
	case parquet.Int96:
		i := v.Int96()
		return int96Time(i[0], i[1], i[2])
	case parquet.Float:
		return v.Float()
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		b := v.ByteArray()
		if lt != nil && lt.Decimal != nil {
			return decimalBytes(b, lt.Decimal.Scale)
		}
		return string(b)
	}
	return v.String()
}

// int96Time decodes an INT96 timestamp: nanoseconds of the day in the low
// two words and the Julian day in the high word.
func int96Time(lo, mid, day uint32) time.Time {
	nanos := int64(uint64(mid)<<32 | uint64(lo))
	days := int64(day) - julianUnixEpoch
	return time.Unix(days*86400, nanos).UTC()
}

func timestampOf(n int64, unit format.TimeUnit) time.Time {
	switch {
	case unit.Millis != nil:
		return time.UnixMilli(n).UTC()
	case unit.Micros != nil:
		return time.UnixMicro(n).UTC()
	default:
		return time.Unix(0, n).UTC()
	}
}

func scaled(unscaled float64, scale int32) float64 {
	return unscaled / math.Pow10(int(scale))
}

// decimalBytes decodes a big-endian two's complement unscaled decimal.
func decimalBytes(b []byte, scale int32) float64 {
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(n), new(big.Float).SetFloat64(math.Pow10(int(scale)))).Float64()
	return f
}
