package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-civitai-cache/internal/database"
	"go-civitai-cache/internal/models"
	"go-civitai-cache/internal/paths"
)

var scanMediaFlag bool

var scanCmd = &cobra.Command{
	Use:   "scan [VERSION_ID]",
	Short: "Report which cached files are actually present on disk",
	Long: `Walks the cache entries in the database and checks each version's expected
files against the filesystem. With a VERSION_ID argument only that version is
scanned. Media directories are scanned by recovering media ids from the
leading digit run of each filename.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanMediaFlag, "media", false, "Also scan media directories")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := globalConfig

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	layout := paths.NewLayout(cfg.SavePath)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Model\tVersion\tVersion ID\tFiles Expected\tFiles Present\tMedia Present\tStatus")
	fmt.Fprintln(tw, "-----\t-------\t----------\t--------------\t-------------\t-------------\t------")

	scanned := 0
	missing := 0

	scanOne := func(entry models.CacheEntry) error {
		if err := cmd.Context().Err(); err != nil {
			return err
		}

		version := versionFromCore(entry.Version)
		vl := paths.NewVersionLayout(layout, entry.ModelType, entry.ModelID, &version)

		present, err := vl.FilesOnDisk(cmd.Context())
		if err != nil {
			return err
		}

		mediaCount := "-"
		if scanMediaFlag {
			mediaEntries, err := vl.MediaOnDisk(cmd.Context())
			if err != nil {
				return err
			}
			mediaCount = strconv.Itoa(len(mediaEntries))
		}

		expected := len(entry.Version.Files)
		if len(present) < expected {
			missing += expected - len(present)
		}

		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			entry.ModelName, entry.Version.Name, entry.Version.ID,
			expected, len(present), mediaCount, entry.Status)
		scanned++
		return nil
	}

	if len(args) == 1 {
		versionID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version id %q: %w", args[0], err)
		}
		entry, err := db.GetEntry(versionID)
		if err != nil {
			return fmt.Errorf("loading cache entry for version %d: %w", versionID, err)
		}
		if err := scanOne(entry); err != nil {
			return err
		}
	} else {
		if err := db.FoldEntries(scanOne); err != nil {
			return fmt.Errorf("scanning cache entries: %w", err)
		}
	}

	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing scan report")
	}

	log.Infof("Scanned %d versions, %d expected files missing.", scanned, missing)
	return nil
}

// versionFromCore rebuilds a version value from its persisted projection so
// the path facades can compute expected locations.
func versionFromCore(core models.VersionCore) models.ModelVersion {
	return models.ModelVersion{
		ID:            core.ID,
		Name:          core.Name,
		BaseModel:     core.BaseModel,
		BaseModelType: core.BaseModelType,
		NsfwLevel:     core.NsfwLevel,
		Description:   core.Description,
		Stats:         core.Stats,
		Files:         core.Files,
		Media:         core.Media,
	}
}
