package query

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewCellString(t *testing.T) {
	when := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	cases := []struct {
		value any
		kind  Kind
		text  string
	}{
		{nil, KindNull, "NULL"},
		{"Task 1", KindText, "Task 1"},
		{[]byte("Task 2"), KindText, "Task 2"},
		{[]byte{0xff, 0x00}, KindBytes, "x'ff00'"},
		{int64(42), KindInteger, "42"},
		{int32(-7), KindInteger, "-7"},
		{1.5, KindFloat, "1.5"},
		{true, KindBool, "true"},
		{when, KindTime, "2024-05-01T12:30:00Z"},
		{struct{ A int }{1}, KindOther, "{1}"},
	}
	for _, tc := range cases {
		cell := NewCell(tc.value)
		if cell.Kind != tc.kind {
			t.Fatalf("NewCell(%#v).Kind = %s, want %s", tc.value, cell.Kind, tc.kind)
		}
		if got := cell.String(); got != tc.text {
			t.Fatalf("NewCell(%#v).String() = %q, want %q", tc.value, got, tc.text)
		}
	}
}

func TestCellMarshalJSON(t *testing.T) {
	row := []Cell{NewCell(int64(2)), NewCell(nil), NewCell("done"), NewCell([]byte{0xff})}
	encoded, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if got, want := string(encoded), `[2,null,"done","x'ff'"]`; got != want {
		t.Fatalf("json = %s, want %s", got, want)
	}
}
