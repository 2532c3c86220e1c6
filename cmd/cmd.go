// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/imagecaption/captioner/envconfig"
	"github.com/imagecaption/captioner/logutil"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))

	rootCmd := &cobra.Command{
		Use:           "captioner",
		Short:         "Image captioning with LLM refinement",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	serveCmd := newServeCmd()
	captionCmd := newCaptionCmd()
	refineCmd := newRefineCmd()
	hashtagsCmd := newHashtagsCmd()
	translateCmd := newTranslateCmd()
	checkpointCmd := newCheckpointCmd()
	scoreCmd := newScoreCmd()

	envVars := envconfig.AsMap()
	clientEnvs := []envconfig.EnvVar{envVars["CAPTIONER_HOST"]}

	for _, cmd := range []*cobra.Command{serveCmd, captionCmd, refineCmd, hashtagsCmd, translateCmd, checkpointCmd, scoreCmd} {
		switch cmd {
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["CAPTIONER_DEBUG"],
				envVars["CAPTIONER_HOST"],
				envVars["CAPTIONER_ORIGINS"],
				envVars["CAPTIONER_ENCODER_MODEL"],
				envVars["CAPTIONER_DECODER_MODEL"],
				envVars["CAPTIONER_CHECKPOINT"],
				envVars["CAPTIONER_CHECKPOINT_URL"],
				envVars["CAPTIONER_NUM_PARALLEL"],
				envVars["CAPTION_SERVICE_URL"],
				envVars["CAPTION_SERVICE_TIMEOUT"],
				envVars["LLM_API_URL"],
				envVars["LLM_MODEL"],
				envVars["LLM_TIMEOUT"],
				envVars["LLM_WORKERS"],
				envVars["LLM_REQUESTS_PER_MINUTE"],
				envVars["REFINE_MIN_WORDS"],
				envVars["REFINE_MAX_WORDS"],
				envVars["GROQ_API_KEY"],
			})
		case checkpointCmd, scoreCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["CAPTIONER_ENCODER_MODEL"],
				envVars["CAPTIONER_DECODER_MODEL"],
				envVars["CAPTIONER_CHECKPOINT"],
				envVars["CAPTIONER_CHECKPOINT_URL"],
			})
		default:
			appendEnvDocs(cmd, clientEnvs)
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		captionCmd,
		refineCmd,
		hashtagsCmd,
		translateCmd,
		checkpointCmd,
		scoreCmd,
	)

	return rootCmd
}
