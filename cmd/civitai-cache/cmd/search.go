package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-civitai-cache/internal/index"
)

var searchLimitFlag int

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search the cache's full-text index",
	Long: `Searches indexed cache entries using bleve query string syntax, e.g.
'modelType:LORA creator:somebody' or a bare term matched across all fields.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimitFlag, "limit", "l", 25, "Maximum number of hits to display")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := globalConfig

	idx, err := index.OpenOrCreateIndex(cfg.BleveIndexPath)
	if err != nil {
		return fmt.Errorf("opening search index: %w", err)
	}
	defer idx.Close()

	result, err := index.Search(idx, args[0], searchLimitFlag)
	if err != nil {
		return err
	}

	if result.Total == 0 {
		log.Infof("No matches for query %q.", args[0])
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Score\tVersion ID\tModel\tVersion\tType\tCreator\tStatus")
	fmt.Fprintln(tw, "-----\t----------\t-----\t-------\t----\t-------\t------")

	for _, hit := range result.Hits {
		fmt.Fprintf(tw, "%.3f\t%s\t%v\t%v\t%v\t%v\t%v\n",
			hit.Score,
			hit.ID,
			hit.Fields["modelName"],
			hit.Fields["versionName"],
			hit.Fields["modelType"],
			hit.Fields["creator"],
			hit.Fields["status"],
		)
	}
	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing search results")
	}

	log.Infof("Displayed %d of %d matches.", len(result.Hits), result.Total)
	return nil
}
