// Package printer is the single place CLI output gets colored and prefixed,
// so every command reports the same way.
package printer

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// Color is forced on unless the user opts out with NO_COLOR.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// line formats and guarantees exactly one trailing newline.
func line(format string, a ...any) string {
	return strings.TrimRight(fmt.Sprintf(format, a...), "\n") + "\n"
}

// Success prints a green checkmarked line.
func Success(format string, a ...any) {
	green.Print("✓ " + line(format, a...))
}

// Info prints an uncolored line.
func Info(format string, a ...any) {
	fmt.Print(line(format, a...))
}

// Warning prints a yellow line with a warning prefix.
func Warning(format string, a ...any) {
	yellow.Print("⚠ " + line(format, a...))
}

// Step prints a cyan arrow line, used for the parts of a multi-step
// operation.
func Step(format string, a ...any) {
	cyan.Print("→ " + line(format, a...))
}

// Error writes a structured failure report to stderr: a red title, an
// explanation, and optional suggestions. The returned error carries only the
// title; cobra runs with SilenceErrors so nothing is printed twice.
func Error(title string, explanation string, suggestions []string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(os.Stderr, "%s\n", explanation)
	}

	if len(suggestions) > 0 {
		fmt.Fprintln(os.Stderr)
		if len(suggestions) == 1 {
			fmt.Fprintln(os.Stderr, suggestions[0])
		} else {
			fmt.Fprintln(os.Stderr, "Either:")
			for i, suggestion := range suggestions {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	return fmt.Errorf("%s", title)
}

// Println prints a plain message.
func Println(a ...any) {
	fmt.Println(a...)
}

// Printf prints a plain formatted message.
func Printf(format string, a ...any) {
	fmt.Printf(format, a...)
}
