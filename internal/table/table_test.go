// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package table

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable(t *testing.T) *Table {
	t.Helper()
	tb := New(
		Column{Name: "Producto", Type: String},
		Column{Name: "Cantidad", Type: Int64},
		Column{Name: "Precio", Type: Float64},
	)
	require.NoError(t, tb.AddRow("Laptop", int64(45), 850.5))
	require.NoError(t, tb.AddRow("Teclado <USB>", int64(89), nil))
	return tb
}

func TestAddRow_ArityMismatch(t *testing.T) {
	tb := Strings("a", "b")
	assert.Error(t, tb.AddRow("only one"))
	assert.NoError(t, tb.AddRow("x", "y"))
	assert.Equal(t, 1, tb.Len())
}

func TestEmpty(t *testing.T) {
	var nilTable *Table
	assert.True(t, nilTable.Empty())
	assert.Equal(t, 0, nilTable.Len())
	assert.True(t, New().Empty())
	assert.True(t, Strings("a").Empty())
	assert.False(t, sampleTable(t).Empty())
}

func TestColumnIndex(t *testing.T) {
	tb := sampleTable(t)
	i, ok := tb.ColumnIndex("Precio")
	assert.True(t, ok)
	assert.Equal(t, 2, i)
	_, ok = tb.ColumnIndex("missing")
	assert.False(t, ok)
}

func TestFormat(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"texto", "texto"},
		{10.5, "10.5"},
		{float32(0.25), "0.25"},
		{int64(42), "42"},
		{true, "true"},
		{ts, "2025-03-01T10:30:00Z"},
		{90 * time.Second, "1m30s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.in))
	}
}

func TestWriteJSON_OrderedAndUnescaped(t *testing.T) {
	tb := sampleTable(t)
	out, err := tb.JSON()
	require.NoError(t, err)
	assert.Equal(t,
		`[{"Producto":"Laptop","Cantidad":45,"Precio":850.5},{"Producto":"Teclado <USB>","Cantidad":89,"Precio":null}]`,
		out)
}

func TestWriteJSONLines(t *testing.T) {
	tb := New(Column{Name: "fecha", Type: Timestamp}, Column{Name: "nombre", Type: String}, Column{Name: "v", Type: Float64})
	require.NoError(t, tb.AddRow(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "María", math.NaN()))

	var buf bytes.Buffer
	require.NoError(t, tb.WriteJSONLines(&buf))
	assert.Equal(t, `{"fecha":"2024-01-02T03:04:05Z","nombre":"María","v":null}`+"\n", buf.String())
}

func TestRecords(t *testing.T) {
	recs := sampleTable(t).Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "Laptop", recs[0]["Producto"])
	assert.Nil(t, recs[1]["Precio"])
}

func TestCSVRoundTrip(t *testing.T) {
	in := "Departamento,Nombre,Salario,Activo,Nota\nIT,Juan,5000,true,1.5\nIT,María,5500,false,\nHR,Luis,3800,true,2\n"
	tb, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	require.Len(t, tb.Columns, 5)
	assert.Equal(t, String, tb.Columns[0].Type)
	assert.Equal(t, Int64, tb.Columns[2].Type)
	assert.Equal(t, Bool, tb.Columns[3].Type)
	assert.Equal(t, Float64, tb.Columns[4].Type)
	assert.Equal(t, int64(5500), tb.Cell(1, 2))
	assert.Nil(t, tb.Cell(1, 4))

	var buf bytes.Buffer
	require.NoError(t, tb.WriteCSV(&buf))
	assert.Equal(t, in, buf.String())
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b\n1\n"))
	assert.Error(t, err)

	tb, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.True(t, tb.Empty())
}

func TestAppend(t *testing.T) {
	a := sampleTable(t)
	b := sampleTable(t)
	require.NoError(t, a.Append(b))
	assert.Equal(t, 4, a.Len())

	empty := New()
	require.NoError(t, empty.Append(b))
	assert.Equal(t, 2, empty.Len())

	wide := Strings("x", "y", "z", "w")
	require.NoError(t, wide.AddRow("1", "2", "3", "4"))
	assert.Error(t, a.Append(wide))

	renamed := Strings("Producto", "Unidades", "Precio")
	require.NoError(t, renamed.AddRow("Mouse", "1", "2"))
	assert.Error(t, a.Append(renamed))

	// Empty input is a no-op.
	assert.NoError(t, a.Append(Strings("x")))
	assert.Equal(t, 4, a.Len())
}

func TestSchemaAndAthenaTypes(t *testing.T) {
	tb := New(
		Column{Name: "id", Type: Int64},
		Column{Name: "n", Type: Int32},
		Column{Name: "score", Type: Float64},
		Column{Name: "ratio", Type: Float32},
		Column{Name: "ok", Type: Bool},
		Column{Name: "at", Type: Timestamp},
		Column{Name: "label", Type: String},
		Column{Name: "wait", Type: Duration},
	)
	want := []ColumnDef{
		{"id", "bigint"}, {"n", "int"}, {"score", "double"}, {"ratio", "float"},
		{"ok", "boolean"}, {"at", "timestamp"}, {"label", "string"}, {"wait", "string"},
	}
	assert.Equal(t, want, tb.Schema())
	assert.Equal(t, "string", AthenaType(Kind(99)))
}

func TestKindFromAthena(t *testing.T) {
	assert.Equal(t, Int64, KindFromAthena("bigint"))
	assert.Equal(t, Int32, KindFromAthena("integer"))
	assert.Equal(t, Float64, KindFromAthena("decimal(10,2)"))
	assert.Equal(t, Float32, KindFromAthena("real"))
	assert.Equal(t, Bool, KindFromAthena("boolean"))
	assert.Equal(t, Timestamp, KindFromAthena("timestamp"))
	assert.Equal(t, String, KindFromAthena("varchar"))
}

func TestParseAthenaValue(t *testing.T) {
	s := func(v string) *string { return &v }

	assert.Nil(t, ParseAthenaValue(Int64, nil))
	assert.Equal(t, int64(7), ParseAthenaValue(Int64, s("7")))
	assert.Equal(t, int32(7), ParseAthenaValue(Int32, s("7")))
	assert.Equal(t, 1.25, ParseAthenaValue(Float64, s("1.25")))
	assert.Equal(t, float32(1.5), ParseAthenaValue(Float32, s("1.5")))
	assert.Equal(t, true, ParseAthenaValue(Bool, s("true")))
	assert.Equal(t, time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC), ParseAthenaValue(Timestamp, s("2025-05-06 07:08:09.000")))
	assert.Equal(t, "abc", ParseAthenaValue(Int64, s("abc")))
	assert.Equal(t, "x", ParseAthenaValue(String, s("x")))
}
