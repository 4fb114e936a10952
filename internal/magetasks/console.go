package magetasks

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// out receives task output.
var out io.Writer = os.Stdout

// PrintH1Header prints a banner centered in an 80 column rule.
func PrintH1Header(title string) {
	const width = 80
	rule := strings.Repeat("=", width)
	pad := max((width-len(title))/2, 0)
	fmt.Fprintf(out, "\n%s\n%s%s\n%s\n\n", rule, strings.Repeat(" ", pad), title, rule)
}

// PrintH2Header prints a section header.
func PrintH2Header(title string) {
	fmt.Fprintf(out, "\n=== %s ===\n\n", title)
}

// PrintSuccess prints a success message.
func PrintSuccess(msg string) { fmt.Fprintf(out, "✅ %s\n", msg) }

// PrintWarning prints a warning message.
func PrintWarning(msg string) { fmt.Fprintf(out, "⚠️  %s\n", msg) }

// PrintError prints an error message.
func PrintError(msg string) { fmt.Fprintf(out, "❌ %s\n", msg) }
