package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lifeos/tasks/internal/merge"
	"github.com/lifeos/tasks/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the full dataset as a JSON bundle",
	Long: `Export writes every record in all collections to a single JSON
document, suitable for transfer to another machine and re-import with
'tasksadm import'. Writes to stdout if no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func init() {
	rootAdmCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	database, _, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	doc, err := merge.Export(store.New(database))
	if err != nil {
		return exitError(1, fmt.Errorf("failed to export: %w", err))
	}

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		f, err := os.Create(args[0])
		if err != nil {
			return exitError(1, fmt.Errorf("failed to create %s: %w", args[0], err))
		}
		defer f.Close()
		out = f
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}
