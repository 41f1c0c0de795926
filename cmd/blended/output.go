package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/Shivam-Patel-G/blended-math/core/contracts"
	"github.com/Shivam-Patel-G/blended-math/core/fixedpoint"
)

var (
	okColor    = color.New(color.FgGreen, color.Bold)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed, color.Bold)
	labelColor = color.New(color.FgCyan)
)

func printOK(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, okColor.Sprint("✅ ")+fmt.Sprintf(format, args...))
}

func printWarn(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, warnColor.Sprint("⚠️  ")+fmt.Sprintf(format, args...))
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, errColor.Sprint("❌ ")+err.Error())
}

func printField(w io.Writer, label string, value interface{}) {
	fmt.Fprintf(w, "   %s %v\n", labelColor.Sprintf("%-18s", label+":"), value)
}

func printResult(w io.Writer, r *contracts.Result) {
	line := fmt.Sprintf("%s(%s) [%s] = %s", r.Function, fixedpoint.Format(r.Input), r.Implementation, r.Formatted)
	if r.Mock {
		printWarn(w, "%s (local)", line)
	} else {
		printOK(w, "%s", line)
	}
	printField(w, "raw", r.Raw.String())
	printField(w, "elapsed", r.Elapsed.Round(time.Microsecond))
}

func printComparison(w io.Writer, c *contracts.Comparison) {
	fmt.Fprintln(w, labelColor.Sprintf("%s(%s)", c.Function, fixedpoint.Format(c.Input)))
	printField(w, "solidity", c.Solidity.Formatted)
	printField(w, "rust", c.Rust.Formatted)
	printField(w, "difference", fixedpoint.Format(c.Difference))
	printField(w, "accuracy", fmt.Sprintf("%.6f%%", c.Accuracy()))
}
