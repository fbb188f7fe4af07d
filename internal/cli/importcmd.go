package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/lifeos/tasks/internal/domain"
	"github.com/lifeos/tasks/internal/merge"
	"github.com/lifeos/tasks/internal/record"
	"github.com/lifeos/tasks/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a JSON bundle into the database",
	Long: `Import reads a bundle produced by 'tasksadm export' and merges it into
the database. Records with new ids are inserted; records whose id already
exists are merged field by field, incoming values winning unless an
override selects the existing value.

Use --preview to see counts, collisions, and per-field differences
without changing anything. Use --overrides to supply a JSON file of
per-field choices ("existing" or "incoming") for colliding records.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	importPreview   bool
	importYes       bool
	importOverrides string
)

func init() {
	rootAdmCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importPreview, "preview", false, "Show what the import would do without applying it")
	importCmd.Flags().BoolVar(&importYes, "yes", false, "Apply without prompting for confirmation")
	importCmd.Flags().StringVar(&importOverrides, "overrides", "", "Path to a JSON file of per-field override choices")
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := readBundleFile(args[0])
	if err != nil {
		return exitError(1, err)
	}

	bundle, err := record.ParseBundle(data)
	if err != nil {
		return exitError(1, err)
	}

	var overrides merge.Overrides
	if importOverrides != "" {
		ovData, err := os.ReadFile(importOverrides)
		if err != nil {
			return exitError(1, fmt.Errorf("failed to read overrides: %w", err))
		}
		if err := json.Unmarshal(ovData, &overrides); err != nil {
			return exitError(1, fmt.Errorf("failed to parse overrides: %w", err))
		}
		if err := merge.ValidateOverrides(overrides); err != nil {
			return exitError(1, err)
		}
	}

	database, _, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	st := store.New(database)
	out := cmd.OutOrStdout()

	preview, err := merge.BuildPreview(st, bundle)
	if err != nil {
		return exitError(1, fmt.Errorf("failed to build preview: %w", err))
	}

	renderPreview(out, preview)

	if importPreview {
		return nil
	}

	collisions := 0
	for _, ids := range preview.Collisions {
		collisions += len(ids)
	}
	if collisions > 0 && !importYes {
		if !confirm(cmd.InOrStdin(), out, fmt.Sprintf("Merge %d colliding record(s)?", collisions)) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	result, err := merge.Commit(st, bundle, overrides)
	if err != nil {
		return exitError(1, err)
	}

	fmt.Fprintln(out)
	for _, collection := range domain.Collections {
		counts := result.Counts[collection]
		if counts.Inserted == 0 && counts.Merged == 0 {
			continue
		}
		fmt.Fprintf(out, "✓ %s: %d inserted, %d merged\n", collection, counts.Inserted, counts.Merged)
	}
	fmt.Fprintln(out, "Import committed.")
	return nil
}

func readBundleFile(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func renderPreview(out io.Writer, preview *merge.PreviewResult) {
	fmt.Fprintln(out, "Import preview:")
	for _, collection := range domain.Collections {
		count := preview.Preview.Counts[collection]
		colliding := len(preview.Collisions[collection])
		if count == 0 && colliding == 0 {
			continue
		}
		fmt.Fprintf(out, "  %s: %d record(s), %d collision(s)\n", collection, count, colliding)
	}

	malformedTotal := 0
	for _, n := range preview.Preview.Malformed {
		malformedTotal += n
	}
	if malformedTotal > 0 {
		fmt.Fprintf(out, "  skipped %d malformed record(s):\n", malformedTotal)
		for _, collection := range domain.Collections {
			if n := preview.Preview.Malformed[collection]; n > 0 {
				fmt.Fprintf(out, "    %s: %d\n", collection, n)
			}
		}
	}

	for _, collection := range domain.Collections {
		ids := preview.Collisions[collection]
		if len(ids) == 0 {
			continue
		}
		fmt.Fprintf(out, "\nCollisions in %s:\n", collection)
		for _, id := range ids {
			fmt.Fprintf(out, "  %s\n", id)
			renderDiff(out, preview.Preview.Diffs[collection][id])
		}
	}
}

// renderDiff prints one line per changed field. Multi-line strings get
// a unified diff; everything else is shown as existing -> incoming.
func renderDiff(out io.Writer, diff merge.FieldDiff) {
	fields := make([]string, 0, len(diff))
	for field := range diff {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		change := diff[field]
		existingStr, existingMulti := renderValue(change.Existing, change.ExistingMissing)
		incomingStr, incomingMulti := renderValue(change.Incoming, change.IncomingMissing)

		if existingMulti || incomingMulti {
			fmt.Fprintf(out, "    %s:\n", field)
			ud := difflib.UnifiedDiff{
				A:        difflib.SplitLines(existingStr),
				B:        difflib.SplitLines(incomingStr),
				FromFile: "existing",
				ToFile:   "incoming",
				Context:  3,
			}
			if text, err := difflib.GetUnifiedDiffString(ud); err == nil {
				for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
					fmt.Fprintf(out, "      %s\n", line)
				}
			}
			continue
		}

		fmt.Fprintf(out, "    %s: %s -> %s\n", field, existingStr, incomingStr)
	}
}

// renderValue formats a field value and reports whether it is a
// multi-line string.
func renderValue(v any, missing bool) (string, bool) {
	if missing {
		return "(absent)", false
	}
	if s, ok := v.(string); ok {
		if strings.Contains(s, "\n") {
			return s, true
		}
		return fmt.Sprintf("%q", s), false
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v), false
	}
	return string(data), false
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
