// SPDX-License-Identifier: Apache-2.0
package main

import (
	"errors"
	"fmt"
	"os"

	"oath/cmd/oath-cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		// Findings are already on screen in rendered form; anything
		// else still needs a line.
		if !errors.Is(err, commands.ErrFindings) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}
