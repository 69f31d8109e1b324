package main

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	reindexWait   bool
	reindexSource string
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Trigger a full index rebuild",
	Long: `Asks the server to rebuild the index from the configured document
directory. The rebuild runs in the background; live queries keep serving
the previous index until the new one is swapped in.`,
	RunE: runReindex,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index state and the last rebuild summary",
	RunE:  runStatus,
}

func init() {
	reindexCmd.Flags().BoolVar(&reindexWait, "wait", false, "poll until the rebuild finishes")
	reindexCmd.Flags().StringVar(&reindexSource, "source", "", "document directory on the server (default: server config)")
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(statusCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	var body any
	if reindexSource != "" {
		body = map[string]string{"source_directory": reindexSource}
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := doJSON(http.MethodPost, apiURL+"/api/v1/admin/reindex", body, &resp); err != nil {
		return err
	}
	cmd.Println("Reindex", resp.Status)

	if !reindexWait {
		return nil
	}

	for {
		time.Sleep(2 * time.Second)
		state, err := fetchStatus()
		if err != nil {
			return err
		}
		if state.State == "idle" || state.State == "failed" {
			return printStatus(cmd, state)
		}
		cmd.Println("  state:", state.State)
	}
}

type indexStatus struct {
	State   string `json:"state"`
	LastRun struct {
		Status          string  `json:"status"`
		FilesProcessed  int     `json:"files_processed"`
		FilesSkipped    int     `json:"files_skipped"`
		UnitsProduced   int     `json:"units_produced"`
		DurationSeconds float64 `json:"duration_seconds"`
		Collection      string  `json:"collection"`
	} `json:"last_run"`
	Collection  string `json:"collection"`
	PointsCount uint64 `json:"points_count"`
	Generations []struct {
		Name        string `json:"name"`
		AliasTarget bool   `json:"alias_target"`
	} `json:"generations,omitempty"`
}

func fetchStatus() (*indexStatus, error) {
	var st indexStatus
	if err := doJSON(http.MethodGet, apiURL+"/api/v1/admin/reindex/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := fetchStatus()
	if err != nil {
		return err
	}
	return printStatus(cmd, st)
}

func printStatus(cmd *cobra.Command, st *indexStatus) error {
	return printJSON(cmd, st)
}
