package display

import (
	"testing"
	"time"

	"golang.org/x/text/language"
)

func TestFormatter_Amount(t *testing.T) {
	tests := []struct {
		tag  language.Tag
		ml   int
		want string
	}{
		{language.AmericanEnglish, 250, "250 ml"},
		{language.AmericanEnglish, 1500, "1,500 ml"},
		{language.Korean, 2000, "2,000 ml"},
		{language.German, 1500, "1.500 ml"},
		{language.AmericanEnglish, 0, "0 ml"},
	}

	for _, tt := range tests {
		t.Run(tt.tag.String()+"/"+tt.want, func(t *testing.T) {
			f := NewFormatter(tt.tag, time.UTC)
			if got := f.Amount(tt.ml); got != tt.want {
				t.Errorf("Amount(%d) = %q, want %q", tt.ml, got, tt.want)
			}
		})
	}
}

func TestFormatter_Percent(t *testing.T) {
	tests := []struct {
		tag   language.Tag
		ratio float64
		want  string
	}{
		{language.AmericanEnglish, 0, "0.0%"},
		{language.AmericanEnglish, 0.325, "32.5%"},
		{language.AmericanEnglish, 1.5, "150.0%"},
		{language.German, 0.325, "32,5%"},
	}

	for _, tt := range tests {
		t.Run(tt.tag.String()+"/"+tt.want, func(t *testing.T) {
			f := NewFormatter(tt.tag, time.UTC)
			if got := f.Percent(tt.ratio); got != tt.want {
				t.Errorf("Percent(%v) = %q, want %q", tt.ratio, got, tt.want)
			}
		})
	}
}

func TestFormatter_Time(t *testing.T) {
	tests := []struct {
		name string
		tag  language.Tag
		at   time.Time
		want string
	}{
		{"english morning", language.AmericanEnglish, time.Date(2024, 1, 15, 9, 5, 0, 0, time.UTC), "9:05 AM"},
		{"english afternoon", language.AmericanEnglish, time.Date(2024, 1, 15, 15, 5, 0, 0, time.UTC), "3:05 PM"},
		{"korean morning", language.Korean, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), "오전 10:30"},
		{"korean afternoon", language.Korean, time.Date(2024, 1, 15, 15, 5, 0, 0, time.UTC), "오후 3:05"},
		{"korean noon", language.Korean, time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), "오후 12:00"},
		{"korean midnight", language.Korean, time.Date(2024, 1, 15, 0, 5, 0, 0, time.UTC), "오전 12:05"},
		{"korean region tag", language.MustParse("ko-KR"), time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC), "오후 8:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFormatter(tt.tag, time.UTC)
			if got := f.Time(tt.at); got != tt.want {
				t.Errorf("Time() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatter_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	f := NewFormatter(language.AmericanEnglish, loc)

	at := time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC)
	if got := f.Date(at); got != "2024-01-16" {
		t.Errorf("Date() = %q, want 2024-01-16", got)
	}
	if got := f.Time(at); got != "5:00 AM" {
		t.Errorf("Time() = %q, want 5:00 AM", got)
	}
}

func TestFormatter_Progress(t *testing.T) {
	f := NewFormatter(language.AmericanEnglish, time.UTC)
	if got, want := f.Progress(650, 2000, 0.325), "650 ml / 2,000 ml (32.5%)"; got != want {
		t.Errorf("Progress() = %q, want %q", got, want)
	}
}
