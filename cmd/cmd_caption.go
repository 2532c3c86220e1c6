// cmd_caption.go - Client-Commands gegen einen laufenden Server
// Hauptfunktionen: CaptionHandler, RefineHandler, HashtagsHandler, TranslateHandler
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/imagecaption/captioner/api"
	"github.com/imagecaption/captioner/llm"
)

// clientFromCommand - Client fuer CAPTIONER_HOST, in Tests austauschbar
var clientFromCommand = func(*cobra.Command) (*api.Client, error) {
	return api.ClientFromEnvironment()
}

// CaptionHandler - Erzeugt eine Caption fuer eine Bilddatei
func CaptionHandler(cmd *cobra.Command, args []string) error {
	client, err := clientFromCommand(cmd)
	if err != nil {
		return err
	}

	image, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	remote, _ := cmd.Flags().GetBool("remote")
	var caption string
	if remote {
		caption, err = client.RemoteCaption(cmd.Context(), image, filepath.Base(args[0]))
	} else {
		maxLength, _ := cmd.Flags().GetInt("max-length")
		numBeams, _ := cmd.Flags().GetInt("num-beams")
		caption, err = client.GenerateCaption(cmd.Context(), image, filepath.Base(args[0]),
			&api.CaptionOptions{MaxLength: maxLength, NumBeams: numBeams})
	}
	if err != nil {
		return err
	}

	printWrapped(cmd, caption)
	return nil
}

// RefineHandler - Verfeinert eine Caption ueber den Server
func RefineHandler(cmd *cobra.Command, args []string) error {
	client, err := clientFromCommand(cmd)
	if err != nil {
		return err
	}

	tone, _ := cmd.Flags().GetString("tone")
	info, _ := cmd.Flags().GetString("info")

	refined, err := client.Refine(cmd.Context(), api.RefineRequest{
		Caption:        strings.Join(args, " "),
		Tone:           tone,
		AdditionalInfo: info,
	})
	if err != nil {
		return err
	}

	printWrapped(cmd, refined)
	return nil
}

// HashtagsHandler - Listet Hashtags fuer eine Caption als Tabelle
func HashtagsHandler(cmd *cobra.Command, args []string) error {
	client, err := clientFromCommand(cmd)
	if err != nil {
		return err
	}

	tags, err := client.Hashtags(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	// Fehlerfaelle liefern eine einzelne Meldung statt Hashtags
	if llm.IsHashtagFailure(tags) {
		return errors.New(tags[0])
	}

	data := make([][]string, 0, len(tags))
	for i, tag := range tags {
		data = append(data, []string{fmt.Sprint(i + 1), tag})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"#", "HASHTAG"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}

// TranslateHandler - Uebersetzt einen Text ueber den Server
func TranslateHandler(cmd *cobra.Command, args []string) error {
	client, err := clientFromCommand(cmd)
	if err != nil {
		return err
	}

	lang, _ := cmd.Flags().GetString("lang")
	translated, err := client.Translate(cmd.Context(), strings.Join(args, " "), lang)
	if err != nil {
		return err
	}

	printWrapped(cmd, translated)
	return nil
}

func newCaptionCmd() *cobra.Command {
	captionCmd := &cobra.Command{
		Use:   "caption IMAGE",
		Short: "Generate a caption for an image",
		Args:  cobra.ExactArgs(1),
		RunE:  CaptionHandler,
	}
	captionCmd.Flags().Int("max-length", 0, "Maximum caption length in tokens (server default when 0)")
	captionCmd.Flags().Int("num-beams", 0, "Beam width (server default when 0)")
	captionCmd.Flags().Bool("remote", false, "Use the remote caption service instead of the local model")
	captionCmd.Flags().Bool("nowordwrap", false, "Don't wrap words to the next line automatically")
	return captionCmd
}

func newRefineCmd() *cobra.Command {
	refineCmd := &cobra.Command{
		Use:   "refine CAPTION",
		Short: "Refine a caption with the LLM",
		Args:  cobra.MinimumNArgs(1),
		RunE:  RefineHandler,
	}
	refineCmd.Flags().String("tone", llm.DefaultTone, "Tone of the refined caption")
	refineCmd.Flags().String("info", "", "Additional context for the refinement")
	refineCmd.Flags().Bool("nowordwrap", false, "Don't wrap words to the next line automatically")
	return refineCmd
}

func newHashtagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hashtags CAPTION",
		Short: "Suggest hashtags for a caption",
		Args:  cobra.MinimumNArgs(1),
		RunE:  HashtagsHandler,
	}
}

func newTranslateCmd() *cobra.Command {
	translateCmd := &cobra.Command{
		Use:   "translate TEXT",
		Short: "Translate a caption",
		Args:  cobra.MinimumNArgs(1),
		RunE:  TranslateHandler,
	}
	translateCmd.Flags().String("lang", llm.DefaultTargetLanguage, "Target language")
	translateCmd.Flags().Bool("nowordwrap", false, "Don't wrap words to the next line automatically")
	return translateCmd
}
