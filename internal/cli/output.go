package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/fatih/color"

	"polyglot/internal/lint"
	"polyglot/internal/settings"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	okColor      = color.New(color.FgGreen)
	dimColor     = color.New(color.Faint)
)

type printer struct{ w io.Writer }

func newPrinter(w io.Writer) printer { return printer{w: w} }

func (p printer) ok(format string, args ...any) {
	okColor.Fprint(p.w, "✓ ")
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p printer) failure(format string, args ...any) {
	errorColor.Fprint(p.w, "✗ ")
	fmt.Fprintf(p.w, format+"\n", args...)
}

func levelColor(l settings.Level) *color.Color {
	if l == settings.LevelError {
		return errorColor
	}
	return warningColor
}

// report prints one lint report on a single line followed by its body.
func (p printer) report(r lint.Report) {
	levelColor(r.Level).Fprintf(p.w, "%-7s", r.Level)
	fmt.Fprintf(p.w, " %s [%s] ", r.MessageID, r.LanguageTag)
	dimColor.Fprintln(p.w, r.RuleID)
	if body := bodyText(r.Body); body != "" {
		fmt.Fprintf(p.w, "        %s\n", body)
	}
}

// bodyText picks the English body, else the first by tag order.
func bodyText(body map[string]string) string {
	if s, ok := body["en"]; ok {
		return s
	}
	tags := slices.Sorted(maps.Keys(body))
	if len(tags) == 0 {
		return ""
	}
	return body[tags[0]]
}

func (p printer) summary(counts map[settings.Level]int) {
	errs, warns := counts[settings.LevelError], counts[settings.LevelWarning]
	if errs == 0 && warns == 0 {
		p.ok("no problems")
		return
	}
	errorColor.Fprintf(p.w, "%d error(s)", errs)
	fmt.Fprint(p.w, ", ")
	warningColor.Fprintf(p.w, "%d warning(s)", warns)
	fmt.Fprintln(p.w)
}
