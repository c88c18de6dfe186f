package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	runtimesvc "github.com/lexcodex/quill/app/quill/runtime"
	"github.com/lexcodex/quill/persistence"
	"github.com/lexcodex/quill/session"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage saved session transcripts",
	}
	cmd.AddCommand(newSessionListCmd(), newSessionShowCmd(), newSessionExportCmd(), newSessionDeleteCmd())
	return cmd
}

func openTranscripts() (*persistence.TranscriptStore, error) {
	return persistence.NewTranscriptStore(runtimesvc.TranscriptDBPath(ensureWorkspace()))
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved transcripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openTranscripts()
			if err != nil {
				return err
			}
			defer store.Close()
			records, err := store.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved sessions.")
				return nil
			}
			for _, rec := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s · %d turns · saved %s\n",
					rec.ID, rec.TurnCount, rec.SavedAt.Format(time.RFC822))
			}
			return nil
		},
	}
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Print a saved transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openTranscripts()
			if err != nil {
				return err
			}
			defer store.Close()
			turns, err := store.Turns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, turn := range turns {
				marker := ""
				if turn.Incomplete {
					marker = " [interrupted]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s (%s)%s\n%s\n\n",
					turn.Timestamp.Format("15:04:05"), turn.Role, turn.Mode, marker, turn.Content)
			}
			return nil
		},
	}
}

func newSessionExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export [id]",
		Short: "Export a transcript as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openTranscripts()
			if err != nil {
				return err
			}
			defer store.Close()
			turns, err := store.Turns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			payload := struct {
				ID    string         `json:"id"`
				Turns []session.Turn `json:"turns"`
			}{ID: args[0], Turns: turns}
			data, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Write JSON to this file instead of stdout")
	return cmd
}

func newSessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a saved transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openTranscripts()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}
