// cmd/logging.go
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
)

// logTo builds a LogFn for the internal packages. Warnings and errors go to
// errOut, everything else to out.
func logTo(out, errOut io.Writer) func(level, msg string) {
	return func(level, msg string) {
		switch level {
		case "error":
			badColor.Fprintln(errOut, msg)
		case "warning":
			warnColor.Fprintln(errOut, msg)
		case "success":
			goodColor.Fprintln(out, msg)
		case "debug":
			Debug("%s", msg)
		default:
			fmt.Fprintln(out, msg)
		}
	}
}

var logLine = logTo(os.Stdout, os.Stderr)
