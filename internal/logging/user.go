package logging

import (
	"fmt"
	"io"
	"os"
)

// Destinations for user-facing status lines. Commands may point these at
// cobra's writers so tests can capture what a user would see.
var (
	UserOut io.Writer = os.Stdout
	UserErr io.Writer = os.Stderr
)

func userLine(w io.Writer, prefix, format string, args ...any) {
	fmt.Fprintf(w, prefix+" "+format+"\n", args...)
}

// UserInfo prints an info line to UserOut.
func UserInfo(format string, args ...any) {
	userLine(UserOut, "ℹ", format, args...)
}

// UserSuccess prints a success line to UserOut.
func UserSuccess(format string, args ...any) {
	userLine(UserOut, "✓", format, args...)
}

// UserWarning prints a warning line to UserErr.
func UserWarning(format string, args ...any) {
	userLine(UserErr, "⚠", format, args...)
}

// UserError prints an error line to UserErr.
func UserError(format string, args ...any) {
	userLine(UserErr, "✗", format, args...)
}

// SetUserOutput redirects user output; nil restores the process streams.
func SetUserOutput(out, errOut io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	UserOut = out
	UserErr = errOut
}
