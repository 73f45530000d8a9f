package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// readInput returns the bulk text named by path. "-" or an empty path reads
// the command's stdin.
func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", WrapExitError(ExitCommandError, "read stdin", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "read input file", err)
	}
	return string(data), nil
}
