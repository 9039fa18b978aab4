package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-civitai-cache/internal/database"
	"go-civitai-cache/internal/index"
	"go-civitai-cache/internal/models"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the cache database",
	Long:  `View, inspect, or delete the cache entries recorded in the database.`,
}

var dbViewCmd = &cobra.Command{
	Use:   "view",
	Short: "List cache entries stored in the database",
	RunE:  runDbView,
}

var dbInfoCmd = &cobra.Command{
	Use:   "info VERSION_ID",
	Short: "Print the full cache entry for a version as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runDbInfo,
}

var dbDeleteCmd = &cobra.Command{
	Use:   "delete VERSION_ID",
	Short: "Delete a version's cache entry and its index document",
	Long: `Removes the cache entry for the given version id from the database and the
search index. Files on disk are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runDbDelete,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbViewCmd)
	dbCmd.AddCommand(dbInfoCmd)
	dbCmd.AddCommand(dbDeleteCmd)
}

func runDbView(cmd *cobra.Command, args []string) error {
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Model Name\tVersion Name\tFolder\tType\tBase Model\tCreator\tStatus\tVersion ID")
	fmt.Fprintln(tw, "----------\t------------\t------\t----\t----------\t-------\t------\t----------")

	count := 0
	err = db.FoldEntries(func(entry models.CacheEntry) error {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			entry.ModelName,
			entry.Version.Name,
			entry.Folder,
			entry.ModelType,
			entry.Version.BaseModel,
			entry.Creator.Username,
			entry.Status,
			entry.Version.ID,
		)
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning cache entries: %w", err)
	}

	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for db view")
	}
	log.Infof("Displayed %d entries.", count)
	return nil
}

func runDbInfo(cmd *cobra.Command, args []string) error {
	versionID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version id %q: %w", args[0], err)
	}

	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	entry, err := db.GetEntry(versionID)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("no cache entry found for version %d", versionID)
	}
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func runDbDelete(cmd *cobra.Command, args []string) error {
	versionID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version id %q: %w", args[0], err)
	}

	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.DeleteEntry(versionID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("no cache entry found for version %d", versionID)
		}
		return err
	}

	// Best effort: the index document may or may not exist.
	idx, idxErr := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if idxErr != nil {
		log.WithError(idxErr).Warn("Entry deleted but search index could not be opened.")
	} else {
		defer idx.Close()
		if err := index.DeleteCacheEntry(idx, versionID); err != nil {
			log.WithError(err).Warn("Entry deleted but index document removal failed.")
		}
	}

	log.Infof("Deleted cache entry for version %d.", versionID)
	return nil
}
