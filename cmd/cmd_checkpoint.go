// cmd_checkpoint.go - Checkpoint-Pruefung und Export
// Hauptfunktionen: CheckpointHandler, renderReport, renderCache, exportWeights
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/imagecaption/captioner/envconfig"
	"github.com/imagecaption/captioner/huggingface"
	"github.com/imagecaption/captioner/model"
	"github.com/imagecaption/captioner/model/models/vitt5"
	"github.com/imagecaption/captioner/safetensors"
)

// CheckpointHandler - Laedt das Modell und zeigt, wie der Checkpoint zugeordnet wurde
func CheckpointHandler(cmd *cobra.Command, _ []string) error {
	cfg := envconfig.Load()
	hub := huggingface.NewClient()

	if cached, _ := cmd.Flags().GetBool("cached"); cached {
		models, err := hub.CachedModels()
		if err != nil {
			return err
		}
		renderCache(cmd.OutOrStdout(), models)
		return nil
	}

	opts := loadOptions(cfg.Model, hub)
	if fetch, _ := cmd.Flags().GetBool("fetch"); !fetch {
		opts.CheckpointURL = ""
	}

	loaded, err := vitt5.Load(cmd.Context(), opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !loaded.Checkpoint {
		fmt.Fprintf(out, "no checkpoint at %q, pretrained submodels with random projection\n", cfg.Model.CheckpointPath)
	} else {
		fmt.Fprintf(out, "checkpoint %s: %d tensors loaded\n\n", cfg.Model.CheckpointPath, loaded.Report.Loaded)
		renderReport(out, loaded.Report)
	}

	if path, _ := cmd.Flags().GetString("export"); path != "" {
		n, err := exportWeights(path, loaded.Model)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nexported %d tensors to %s\n", n, path)
	}
	return nil
}

// renderReport - Tabelle der nicht sauber zugeordneten Schluessel
func renderReport(w io.Writer, r model.LoadReport) {
	var data [][]string
	for _, k := range r.Missing {
		data = append(data, []string{"missing", k})
	}
	for _, k := range r.Unexpected {
		data = append(data, []string{"unexpected", k})
	}
	for _, k := range r.Ignored {
		data = append(data, []string{"ignored", k})
	}

	if len(data) == 0 {
		fmt.Fprintln(w, "all keys matched")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"STATUS", "KEY"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

// renderCache - Tabelle der Modelle im HuggingFace-Cache
func renderCache(w io.Writer, models []huggingface.CachedModel) {
	var data [][]string
	for _, m := range models {
		data = append(data, []string{m.ModelID, strings.Join(m.Revisions, ","), fmt.Sprint(m.FileCount), humanBytes(m.TotalSize)})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"MODEL", "REVISIONS", "FILES", "SIZE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

// exportWeights - Schreibt alle Gewichte des Modells als safetensors
func exportWeights(path string, m *vitt5.Model) (int, error) {
	sd := model.Collect(m)

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	if err := safetensors.Write(f, sd); err != nil {
		f.Close()
		return 0, err
	}
	return len(sd), f.Close()
}

// humanBytes - Dezimale Groessenangabe (KB, MB, GB)
func humanBytes(b int64) string {
	const unit = 1000
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func newCheckpointCmd() *cobra.Command {
	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Load the caption model and report how the checkpoint was applied",
		Args:  cobra.ExactArgs(0),
		RunE:  CheckpointHandler,
	}
	checkpointCmd.Flags().Bool("fetch", false, "Download the checkpoint from CAPTIONER_CHECKPOINT_URL when missing")
	checkpointCmd.Flags().String("export", "", "Write the loaded weights to a safetensors file")
	checkpointCmd.Flags().Bool("cached", false, "List models in the HuggingFace cache instead")
	return checkpointCmd
}
