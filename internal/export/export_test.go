package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"datalik/internal/schema"
)

func exportDataset() *schema.Dataset {
	return &schema.Dataset{
		Columns: []schema.ColumnSchema{
			{Name: "day", Type: schema.TypeDate, Layout: schema.DateLayout},
			{Name: "sales", Type: schema.TypeInteger, Nullable: true},
			{Name: "rate", Type: schema.TypeFloat},
			{Name: "region", Type: schema.TypeCategorical},
		},
		Rows: []schema.Row{
			{
				{Kind: schema.TypeDate, T: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
				{Kind: schema.TypeInteger, Int: 10},
				{Kind: schema.TypeFloat, F: 0.5},
				{Kind: schema.TypeCategorical, S: "north"},
			},
			{
				{Kind: schema.TypeDate, T: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
				schema.NullValue(schema.TypeInteger),
				{Kind: schema.TypeFloat, F: 1.25},
				{Kind: schema.TypeCategorical, S: "south"},
			},
		},
	}
}

func TestCSV(t *testing.T) {
	t.Parallel()

	out, err := CSV(DatasetSource{DS: exportDataset()})
	if err != nil {
		t.Fatalf("CSV() err=%v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out)
	}
	if lines[0] != "day,sales,rate,region" {
		t.Fatalf("header=%q", lines[0])
	}
	if lines[1] != "2024-01-01,10,0.5,north" {
		t.Fatalf("row 1=%q", lines[1])
	}
	// The null sales cell exports as an empty field, not a literal.
	if lines[2] != "2024-01-02,,1.25,south" {
		t.Fatalf("row 2=%q", lines[2])
	}
}

func TestJSON(t *testing.T) {
	t.Parallel()

	out, err := JSON(DatasetSource{DS: exportDataset()})
	if err != nil {
		t.Fatalf("JSON() err=%v", err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(out, &rows); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	if rows[0]["sales"] != float64(10) {
		t.Fatalf("sales=%v (%T), want numeric 10", rows[0]["sales"], rows[0]["sales"])
	}
	if rows[0]["day"] != "2024-01-01" {
		t.Fatalf("day=%v, want canonical date string", rows[0]["day"])
	}
	if v, present := rows[1]["sales"]; !present || v != nil {
		t.Fatalf("null cell=%v present=%v, want explicit JSON null", v, present)
	}
}
