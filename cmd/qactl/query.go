package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	queryJSON          bool
	querySelectionFile string
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question against the indexed documentation",
	Long: `Asks a question across the whole indexed corpus. With
--selection-file, the question is answered against the file's contents
only and the index is not consulted.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the raw response as JSON")
	queryCmd.Flags().StringVar(&querySelectionFile, "selection-file", "", "answer against this file's text instead of the index")
	rootCmd.AddCommand(queryCmd)
}

type queryResponse struct {
	AnswerText string `json:"answer"`
	Citations  []struct {
		SectionTitle string `json:"section_title"`
		SourcePath   string `json:"source_path"`
		AnchorURL    string `json:"anchor_url"`
	} `json:"citations"`
	UnitsUsed int   `json:"units_used"`
	ElapsedMs int64 `json:"elapsed_ms"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	body := map[string]string{"question": args[0]}
	endpoint := apiURL + "/api/v1/query/global"

	if querySelectionFile != "" {
		data, err := os.ReadFile(querySelectionFile)
		if err != nil {
			return fmt.Errorf("failed to read selection file: %w", err)
		}
		body["selected_text"] = string(data)
		endpoint = apiURL + "/api/v1/query/selection"
	}

	var resp queryResponse
	if err := doJSON(http.MethodPost, endpoint, body, &resp); err != nil {
		return err
	}

	if queryJSON {
		return printJSON(cmd, resp)
	}

	cmd.Println(resp.AnswerText)
	if len(resp.Citations) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for _, c := range resp.Citations {
			cmd.Printf("  - %s (%s)\n", c.SectionTitle, c.AnchorURL)
		}
	}
	cmd.Printf("\n%d units, %dms\n", resp.UnitsUsed, resp.ElapsedMs)
	return nil
}
