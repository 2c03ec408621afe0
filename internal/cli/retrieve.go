package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"legalrag/internal/document"
)

var retrieveJSON bool

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Retrieve the articles relevant to a question",
	Long: `Searches the fragment index and prints the enclosing articles,
best match first, each at most once.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	return withServices(cmd, LoadOptions{}, func(ctx context.Context, s *Services) error {
		units, err := s.Retriever.Retrieve(ctx, args[0])
		if err != nil {
			return fmt.Errorf("retrieval failed: %w", err)
		}
		if units == nil {
			units = []document.Unit{}
		}

		if retrieveJSON {
			data, err := json.MarshalIndent(units, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal results: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(units) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
			return nil
		}
		for i, u := range units {
			fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s (%s)\n", i+1, u.Title, u.Metadata.Source)
			fmt.Fprintln(cmd.OutOrStdout(), u.Body)
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return nil
	})
}
