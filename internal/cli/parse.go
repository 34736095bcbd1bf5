package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/parser"
)

func newParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse [file|-]",
		Short: "Extract company and person fragments from contact text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeInput, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			defer closeInput()

			result, err := parser.ParseReader(r)
			if err != nil {
				return err
			}
			return writeJSON(cmd, result)
		},
	}
}

// openInput reads the named file, or stdin when no file or "-" is given.
func openInput(cmd *cobra.Command, args []string) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
