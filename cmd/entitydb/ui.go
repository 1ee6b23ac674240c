package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
)

func printSuccess(w io.Writer, format string, args ...any) {
	_, _ = green.Fprint(w, "✓ ")
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}

func printWarning(w io.Writer, format string, args ...any) {
	_, _ = yellow.Fprint(w, "! ")
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}

func printError(w io.Writer, err error) {
	_, _ = red.Fprint(w, "✗ ")
	_, _ = fmt.Fprintln(w, err)
}

func printHeader(w io.Writer, s string) {
	_, _ = bold.Fprintln(w, s)
}

func printField(w io.Writer, name string, value any) {
	_, _ = dim.Fprintf(w, "  %-14s", name)
	_, _ = fmt.Fprintln(w, value)
}
