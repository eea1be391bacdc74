package dates

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDaysSince(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"2024-02-10", "2024-02-05", 5},
		{"2024-02-05", "2024-02-05", 0},
		{"2024-03-01", "2024-02-28", 2}, // leap year
		{"2024-02-01", "2024-02-10", -9},
	}
	for _, tc := range cases {
		if got := MustParse(tc.a).DaysSince(MustParse(tc.b)); got != tc.want {
			t.Fatalf("%s - %s = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestOfUsesLocalCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC+6", 6*3600)
	ts := time.Date(2024, 2, 5, 1, 30, 0, 0, loc) // still Feb 4 in UTC
	if got := Of(ts).String(); got != "2024-02-05" {
		t.Fatalf("unexpected day %s", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	var payload struct {
		Start Date  `json:"start"`
		End   *Date `json:"end"`
	}
	if err := json.Unmarshal([]byte(`{"start":"2024-02-01","end":null}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Start.String() != "2024-02-01" || payload.End != nil {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	out, err := json.Marshal(payload.Start)
	if err != nil || string(out) != `"2024-02-01"` {
		t.Fatalf("marshal: %s %v", out, err)
	}
	if err := json.Unmarshal([]byte(`{"start":"02/01/2024"}`), &payload); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestScan(t *testing.T) {
	var d Date
	if err := d.Scan(time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)); err != nil || d.String() != "2024-03-08" {
		t.Fatalf("scan time: %v %s", err, d)
	}
	if err := d.Scan("2024-03-01"); err != nil || d.String() != "2024-03-01" {
		t.Fatalf("scan string: %v %s", err, d)
	}
	if err := d.Scan(42); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestAddMonthsClamped(t *testing.T) {
	cases := []struct {
		from string
		n    int
		want string
	}{
		{"2024-01-31", 1, "2024-02-29"},
		{"2023-01-31", 1, "2023-02-28"},
		{"2024-01-15", 3, "2024-04-15"},
		{"2024-03-31", 13, "2025-04-30"},
	}
	for _, tc := range cases {
		if got := MustParse(tc.from).AddMonthsClamped(tc.n).String(); got != tc.want {
			t.Fatalf("%s + %d months = %s, want %s", tc.from, tc.n, got, tc.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, raw := range []string{"2024-02-30", "05/02/2024", ""} {
		_, err := Parse(raw)
		if !IsParseError(err) {
			t.Fatalf("Parse(%q): expected ParseError, got %v", raw, err)
		}
	}

	var body struct {
		Start Date `json:"start"`
	}
	err := json.Unmarshal([]byte(`{"start":"2024-13-01"}`), &body)
	if !IsParseError(err) {
		t.Fatalf("expected ParseError from JSON decoding, got %v", err)
	}
	err = json.Unmarshal([]byte(`{"start":20240101}`), &body)
	if !IsParseError(err) {
		t.Fatalf("expected ParseError for non-string date, got %v", err)
	}
}
