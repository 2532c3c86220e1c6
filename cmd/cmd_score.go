// cmd_score.go - Bewertet eine Caption mit dem lokalen Modell
// Hauptfunktionen: ScoreHandler, scorer.score
package cmd

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/imagecaption/captioner/envconfig"
	"github.com/imagecaption/captioner/huggingface"
	"github.com/imagecaption/captioner/ml"
	"github.com/imagecaption/captioner/model/models/vitt5"
	"github.com/imagecaption/captioner/tokenizer"
	"github.com/imagecaption/captioner/vision"
)

// trainingModel berechnet den Trainingsverlust einer Label-Folge
type trainingModel interface {
	ComputeTrainingOutputs(pixels *ml.Tensor, labels []int32) (*vitt5.TrainingOutputs, error)
}

// scorer haelt alles, was fuer eine Bewertung gebraucht wird
type scorer struct {
	model        trainingModel
	tokenizer    *tokenizer.Tokenizer
	preprocessor vision.Preprocessor
}

// scorerFromCommand - Laedt das Modell wie serve, in Tests austauschbar
var scorerFromCommand = func(cmd *cobra.Command) (*scorer, error) {
	loaded, err := vitt5.Load(cmd.Context(), loadOptions(envconfig.Load().Model, huggingface.NewClient()))
	if err != nil {
		return nil, fmt.Errorf("caption model: %w", err)
	}
	return &scorer{model: loaded.Model, tokenizer: loaded.Tokenizer, preprocessor: loaded.Preprocessor}, nil
}

// score kodiert caption als Labels und berechnet den Verlust fuer das Bild
func (s *scorer) score(image []byte, caption string) (*vitt5.TrainingOutputs, []int32, error) {
	img, err := s.preprocessor.Preprocess(image)
	if err != nil {
		return nil, nil, err
	}

	labels := s.tokenizer.Encode(caption)
	out, err := s.model.ComputeTrainingOutputs(img.Pixels, labels)
	if err != nil {
		return nil, nil, err
	}
	return out, labels, nil
}

// ScoreHandler - Zeigt Verlust und Perplexitaet einer Caption fuer ein Bild
func ScoreHandler(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	caption := strings.Join(args[1:], " ")

	s, err := scorerFromCommand(cmd)
	if err != nil {
		return err
	}

	out, labels, err := s.score(data, caption)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"CAPTION", "TOKENS", "LOSS", "PERPLEXITY"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.Append([]string{
		caption,
		fmt.Sprint(len(labels)),
		fmt.Sprintf("%.4f", out.Loss),
		fmt.Sprintf("%.2f", math.Exp(float64(out.Loss))),
	})
	table.Render()

	return nil
}

func newScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score IMAGE CAPTION",
		Short: "Compute the model's loss for a caption of an image",
		Args:  cobra.MinimumNArgs(2),
		RunE:  ScoreHandler,
	}
}
