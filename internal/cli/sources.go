package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List ingested source documents",
	Args:  cobra.NoArgs,
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, LoadOptions{}, func(ctx context.Context, s *Services) error {
		sources, err := s.Sources.List(ctx)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sources ingested.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SOURCE\tUNITS\tMARKERS\tMODE\tINGESTED")
		for _, src := range sources {
			mode := "articles"
			if src.Fallback {
				mode = "windows"
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
				src.Name, src.UnitCount, src.ArticlesFound, mode, src.IngestedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	})
}
