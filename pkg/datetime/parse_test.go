package datetime

import (
	"testing"
	"time"
)

func TestParseReportDate(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		wantErr bool
	}{
		{name: "valid date", date: "2025-06-30", wantErr: false},
		{name: "valid leap day", date: "2024-02-29", wantErr: false},
		{name: "invalid leap day", date: "2025-02-29", wantErr: true},
		{name: "wrong layout", date: "06/30/2025", wantErr: true},
		{name: "missing day", date: "2025-06", wantErr: true},
		{name: "empty", date: "", wantErr: true},
		{name: "trailing text", date: "2025-06-30T00:00:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReportDate(tt.date)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseReportDate(%q) error = %v, wantErr %v", tt.date, err, tt.wantErr)
			}
			if err == nil && got.Format(ReportDateLayout) != tt.date {
				t.Errorf("ParseReportDate(%q) round trip = %s", tt.date, got.Format(ReportDateLayout))
			}
		})
	}
}

func TestDateBeforeDate(t *testing.T) {
	tests := []struct {
		name    string
		first   string
		second  string
		want    bool
		wantErr bool
	}{
		{name: "before", first: "2025-05-31", second: "2025-06-30", want: true},
		{name: "after", first: "2025-07-31", second: "2025-06-30", want: false},
		{name: "equal", first: "2025-06-30", second: "2025-06-30", want: false},
		{name: "invalid first", first: "bogus", second: "2025-06-30", wantErr: true},
		{name: "invalid second", first: "2025-06-30", second: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DateBeforeDate(tt.first, tt.second)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DateBeforeDate(%q, %q) error = %v, wantErr %v", tt.first, tt.second, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DateBeforeDate(%q, %q) = %v, want %v", tt.first, tt.second, got, tt.want)
			}
		})
	}
}

func TestMustParseTime(t *testing.T) {
	got := MustParseTime(ReportDateLayout, "2025-06-30")
	want := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("MustParseTime = %v, want %v", got, want)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustParseTime did not panic on invalid input")
		}
	}()
	MustParseTime(ReportDateLayout, "not-a-date")
}
