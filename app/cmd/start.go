package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	runtimesvc "github.com/lexcodex/quill/app/quill/runtime"
	"github.com/lexcodex/quill/app/quill/tui"
)

func newStartCmd() *cobra.Command {
	var endpoint string
	var model string
	var probeOnly bool
	var saveAs string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an interactive session in this workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if endpoint == "" {
				endpoint = defaultEndpoint()
			}
			cfg := runtimesvc.Config{
				Workspace:  ensureWorkspace(),
				ConfigPath: cfgFile,
				Endpoint:   endpoint,
				Model:      model,
			}
			if probeOnly {
				if err := cfg.Normalize(); err != nil {
					return err
				}
				report := runtimesvc.ProbeOllama(ctx, cfg.Endpoint, defaultModelName())
				if !report.Healthy {
					return fmt.Errorf("ollama at %s unavailable: %s", report.Endpoint, report.Error)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Ollama healthy at %s (%d models)\n", report.Endpoint, len(report.Models))
				return nil
			}

			bridge := tui.NewBridge()
			rt, err := runtimesvc.New(ctx, cfg, bridge)
			if err != nil {
				return err
			}
			defer rt.Close()

			runErr := tui.Run(ctx, rt, bridge)

			// Transcripts persist only on request; a plain session leaves
			// nothing behind.
			if saveAs != "" {
				if err := rt.SaveTranscript(ctx, saveAs); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "transcript save failed: %v\n", err)
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Ollama endpoint (defaults to OLLAMA_HOST or localhost)")
	cmd.Flags().StringVar(&model, "model", "", "Model name override")
	cmd.Flags().BoolVar(&probeOnly, "probe", false, "Check the inference endpoint and exit")
	cmd.Flags().StringVar(&saveAs, "save-as", "", "Transcript id to save the session under")
	return cmd
}

func defaultModelName() string {
	if globalCfg != nil && globalCfg.Model.Name != "" {
		return globalCfg.Model.Name
	}
	return "qwen2.5-coder:7b"
}

func defaultEndpoint() string {
	if val := os.Getenv("OLLAMA_HOST"); val != "" {
		return val
	}
	if globalCfg != nil && globalCfg.Endpoint != "" {
		return globalCfg.Endpoint
	}
	return "http://localhost:11434"
}
