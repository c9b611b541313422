package ingest

import (
	"reflect"
	"testing"
	"time"

	"datalik/internal/schema"
)

func TestNormalize_CoercionFailuresBecomeNulls(t *testing.T) {
	t.Parallel()

	// The canonical upload example: a 3-row CSV with one bad sales
	// cell. The bad cell becomes null and counts as a coercion failure;
	// no row is dropped.
	rows := [][]string{
		{"2024-01-01", "10"},
		{"2024-01-02", "20"},
		{"2024-01-03", "not a number"},
	}
	cols := []schema.ColumnSchema{
		{Name: "date", Type: schema.TypeDate, Layout: "2006-01-02"},
		{Name: "sales", Type: schema.TypeInteger},
	}

	ds := Normalize(cols, rows)
	if got := ds.RowCount(); got != 3 {
		t.Fatalf("RowCount=%d, want 3", got)
	}
	if got := ds.CoercionFailures["sales"]; got != 1 {
		t.Fatalf("sales failures=%d, want 1", got)
	}
	if !ds.Rows[2][1].Null {
		t.Fatalf("bad cell should be null, got %+v", ds.Rows[2][1])
	}

	sum := 0.0
	for _, r := range ds.Rows {
		if f, ok := r[1].Float(); ok {
			sum += f
		}
	}
	if sum != 30 {
		t.Fatalf("sum over non-null sales=%v, want 30", sum)
	}
}

func TestNormalize_EmptyCellsAreNullNotFailure(t *testing.T) {
	t.Parallel()

	cols := []schema.ColumnSchema{{Name: "n", Type: schema.TypeInteger, Nullable: true}}
	ds := Normalize(cols, [][]string{{"1"}, {""}, {"3"}})

	if len(ds.CoercionFailures) != 0 {
		t.Fatalf("empty cells counted as failures: %v", ds.CoercionFailures)
	}
	if !ds.Rows[1][0].Null {
		t.Fatalf("empty cell not null: %+v", ds.Rows[1][0])
	}
}

func TestNormalize_MixedDateLayoutsCanonicalize(t *testing.T) {
	t.Parallel()

	cols := []schema.ColumnSchema{{Name: "d", Type: schema.TypeDate, Layout: "2006-01-02"}}
	ds := Normalize(cols, [][]string{
		{"2024-03-01"},
		{"2024/03/02"},
		{"2024-03-03 17:45:00"},
	})

	want := []time.Time{
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
	}
	for i, w := range want {
		if !ds.Rows[i][0].T.Equal(w) {
			t.Fatalf("row %d date=%v, want %v", i, ds.Rows[i][0].T, w)
		}
	}
	if len(ds.CoercionFailures) != 0 {
		t.Fatalf("unexpected failures: %v", ds.CoercionFailures)
	}
}

func TestNormalize_PadsShortRowsTruncatesLong(t *testing.T) {
	t.Parallel()

	cols := []schema.ColumnSchema{
		{Name: "a", Type: schema.TypeInteger},
		{Name: "b", Type: schema.TypeText},
	}
	ds := Normalize(cols, [][]string{
		{"1"},
		{"2", "x", "extra"},
	})

	if len(ds.Rows[0]) != 2 || !ds.Rows[0][1].Null {
		t.Fatalf("short row not padded with null: %+v", ds.Rows[0])
	}
	if len(ds.Rows[1]) != 2 {
		t.Fatalf("long row not truncated: %+v", ds.Rows[1])
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	cols := []schema.ColumnSchema{
		{Name: "d", Type: schema.TypeDate, Layout: "2006-01-02"},
		{Name: "amount", Type: schema.TypeFloat},
		{Name: "region", Type: schema.TypeCategorical},
	}
	rows := [][]string{
		{"2024/05/01", "12.50", "north"},
		{"2024-05-02", "oops", "south"},
		{"", "7", ""},
	}

	first := Normalize(cols, rows)
	second := Normalize(cols, Denormalize(first))

	if !reflect.DeepEqual(first.Rows, second.Rows) {
		t.Fatalf("second pass changed values:\nfirst:  %+v\nsecond: %+v", first.Rows, second.Rows)
	}
	// The first pass recorded the genuine failure; the second pass sees
	// only clean canonical forms and nulls.
	if got := first.CoercionFailures["amount"]; got != 1 {
		t.Fatalf("first pass amount failures=%d, want 1", got)
	}
	if len(second.CoercionFailures) != 0 {
		t.Fatalf("second pass produced failures: %v", second.CoercionFailures)
	}
}
