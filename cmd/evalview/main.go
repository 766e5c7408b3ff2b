package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"evalview/internal/errors"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// printError writes err and, for coded errors, the suggested fixes
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)

	var evalErr *errors.EvalError
	if !stderrors.As(err, &evalErr) {
		return
	}
	for _, fix := range evalErr.SuggestedFixes {
		if fix.Command != "" {
			fmt.Fprintf(w, "  try: %s\n", fix.Command)
		} else if fix.Description != "" {
			fmt.Fprintf(w, "  hint: %s\n", fix.Description)
		}
	}
}
