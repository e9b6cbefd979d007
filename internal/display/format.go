// Package display formats raw intake values for people. It never changes
// the values themselves.
package display

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var koreanBase, _ = language.Korean.Base()

// Formatter renders amounts, percentages, dates and times for one locale.
type Formatter struct {
	tag     language.Tag
	printer *message.Printer
	korean  bool
	loc     *time.Location
}

// NewFormatter returns a Formatter for tag that shows times in loc.
// A nil loc means time.Local.
func NewFormatter(tag language.Tag, loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	base, _ := tag.Base()
	return &Formatter{
		tag:     tag,
		printer: message.NewPrinter(tag),
		korean:  base == koreanBase,
		loc:     loc,
	}
}

// Language returns the formatter's locale.
func (f *Formatter) Language() language.Tag {
	return f.tag
}

// Amount formats millilitres with locale digit grouping, e.g. "1,500 ml".
func (f *Formatter) Amount(ml int) string {
	return f.printer.Sprintf("%d ml", ml)
}

// Percent formats a completion ratio with one decimal, e.g. 0.325 as "32.5%".
func (f *Formatter) Percent(ratio float64) string {
	return f.printer.Sprintf("%.1f%%", ratio*100)
}

// Date formats t as 2006-01-02 in the formatter's location.
func (f *Formatter) Date(t time.Time) string {
	return t.In(f.loc).Format(time.DateOnly)
}

// Time formats the clock time of t: "오전 9:05" in Korean, "9:05 AM" otherwise.
func (f *Formatter) Time(t time.Time) string {
	t = t.In(f.loc)
	if !f.korean {
		return t.Format("3:04 PM")
	}
	meridiem := "오전"
	if t.Hour() >= 12 {
		meridiem = "오후"
	}
	return meridiem + " " + t.Format("3:04")
}

// Progress formats "total / goal (percent)".
func (f *Formatter) Progress(total, goal int, ratio float64) string {
	return f.Amount(total) + " / " + f.Amount(goal) + " (" + f.Percent(ratio) + ")"
}
