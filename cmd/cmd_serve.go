// cmd_serve.go - Server-Start
// Hauptfunktionen: RunServer, buildServer, newServeCmd
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/spf13/cobra"

	"github.com/imagecaption/captioner/api"
	"github.com/imagecaption/captioner/dispatch"
	"github.com/imagecaption/captioner/envconfig"
	"github.com/imagecaption/captioner/huggingface"
	"github.com/imagecaption/captioner/llm"
	"github.com/imagecaption/captioner/model/models/vitt5"
	"github.com/imagecaption/captioner/runner"
	"github.com/imagecaption/captioner/server"
)

// loadOptions - Modellquellen aus der Konfiguration
func loadOptions(cfg envconfig.ModelConfig, hub *huggingface.Client) vitt5.LoadOptions {
	return vitt5.LoadOptions{
		EncoderRepo:    cfg.EncoderRepo,
		DecoderRepo:    cfg.DecoderRepo,
		CheckpointPath: cfg.CheckpointPath,
		CheckpointURL:  cfg.CheckpointURL,
		Hub:            hub,
	}
}

// buildServer - Verdrahtet Modell, Caption-Dienst und LLM-Pipeline.
// Mit skipModel bleibt /generate_caption/ unkonfiguriert (503).
func buildServer(ctx context.Context, cfg envconfig.Config, skipModel bool) (*server.Server, error) {
	var captioner server.Captioner
	if !skipModel {
		loaded, err := vitt5.Load(ctx, loadOptions(cfg.Model, huggingface.NewClient()))
		if err != nil {
			return nil, fmt.Errorf("caption model: %w", err)
		}
		captioner = runner.New(loaded, cfg.Model.NumParallel)
	}

	// Caption-Dienst und LLM teilen sich einen Worker-Pool
	ex := dispatch.NewExecutor(cfg.LLM.Workers, nil)

	var remote server.RemoteCaptioner
	if cfg.CaptionServiceURL != "" {
		rc, err := api.NewRemoteCaptioner(cfg.CaptionServiceURL, cfg.CaptionServiceTimeout, ex, nil)
		if err != nil {
			return nil, err
		}
		slog.Info("remote caption service configured", "url", rc.Endpoint(), "timeout", cfg.CaptionServiceTimeout)
		remote = rc
	}

	if cfg.LLM.APIKey == "" {
		slog.Warn("GROQ_API_KEY is not set, refinement requests will fail and fall back to the original caption")
	}
	completer := llm.NewOpenAIClient(cfg.LLM)
	slog.Info("llm configured", "url", cfg.LLM.BaseURL, "model", completer.Model(), "workers", ex.Workers(), "timeout", cfg.LLM.Timeout)

	return server.New(cfg, captioner, remote, llm.NewService(completer, ex, cfg.LLM)), nil
}

// RunServer - Startet den Caption-Server
func RunServer(cmd *cobra.Command, _ []string) error {
	cfg := envconfig.Load()
	skipModel, _ := cmd.Flags().GetBool("no-model")

	s, err := buildServer(cmd.Context(), cfg, skipModel)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Host.Host)
	if err != nil {
		return err
	}

	return s.Serve(cmd.Context(), ln)
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the captioning server",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
	serveCmd.Flags().Bool("no-model", false, "Serve only the remote caption and LLM endpoints")
	return serveCmd
}
