package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tanq16/accel/internal/output"
	"github.com/tanq16/accel/internal/utils"
)

func newCleanCmd() *cobra.Command {
	var tempDir string
	cmd := &cobra.Command{
		Use:   "clean [path]",
		Short: "Clean up leftover segment files",
		Long:  "With an output path, removes that file's leftover segments. Without one, removes every segment in the temp directory (./.accel-temp unless --temp-dir is set).",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var removed int
			var err error
			dir := tempDir
			if len(args) == 0 {
				if dir == "" {
					dir = filepath.Join(".", utils.TempDirName)
				}
				removed, err = utils.CleanLocal(".", tempDir)
			} else {
				dir = utils.TempDirFor(args[0], tempDir)
				removed, err = utils.CleanFunction(args[0], tempDir)
			}
			if err != nil {
				return fmt.Errorf("error cleaning up temporary files: %w", err)
			}
			if removed == 0 {
				output.PrintWarning(fmt.Sprintf("No segment files found in %s", dir))
				return nil
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d temporary file(s)", removed))
			output.PrintDetail(dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&tempDir, "temp-dir", "", "Directory holding segment files")
	return cmd
}
