package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-civitai-cache/internal/database"
	"go-civitai-cache/internal/helpers"
	"go-civitai-cache/internal/models"
	"go-civitai-cache/internal/paths"
)

var verifyCheckHashFlag bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify cached files against their recorded hashes",
	Long: `Checks every Downloaded cache entry: each expected file must exist at its
deterministic path, and when hashes are recorded the strongest available one
(BLAKE3, then SHA256, then CRC32) must match. Entries with problems are
flagged back to Pending in the database.`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyCheckHashFlag, "check-hash", true, "Verify file hashes, not just presence")
}

type verifyStats struct {
	entries    int
	filesOK    int
	missing    int
	mismatched int
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg := globalConfig

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	layout := paths.NewLayout(cfg.SavePath)
	var stats verifyStats
	var flagged []models.CacheEntry

	err = db.FoldEntries(func(entry models.CacheEntry) error {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		if entry.Status != models.StatusDownloaded {
			return nil
		}
		stats.entries++

		version := versionFromCore(entry.Version)
		vl := paths.NewVersionLayout(layout, entry.ModelType, entry.ModelID, &version)

		entryOK := true
		for _, file := range entry.Version.Files {
			path := vl.FilePath(file)

			info, statErr := os.Stat(path)
			if statErr != nil || info.IsDir() {
				log.WithField("path", path).Error("[MISSING] File not found.")
				stats.missing++
				entryOK = false
				continue
			}

			if verifyCheckHashFlag && hasAnyHash(file.Hashes) {
				if helpers.CheckHash(path, file.Hashes) {
					log.WithField("path", path).Debug("[OK] Hash matches.")
					stats.filesOK++
				} else {
					log.WithField("path", path).Warn("[MISMATCH] Hash mismatch.")
					stats.mismatched++
					entryOK = false
				}
			} else {
				stats.filesOK++
			}
		}

		if !entryOK {
			entry.Status = models.StatusPending
			entry.ErrorDetails = "verification failed: missing or mismatched files"
			flagged = append(flagged, entry)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("verifying cache entries: %w", err)
	}

	// Writes happen after the fold; the database lock is not reentrant.
	for _, entry := range flagged {
		if putErr := db.PutEntry(entry); putErr != nil {
			log.WithError(putErr).Errorf("Failed to flag entry for version %d", entry.Version.ID)
		}
	}

	log.Infof("Verification complete. Entries=%d, OK=%d, Missing=%d, Mismatched=%d",
		stats.entries, stats.filesOK, stats.missing, stats.mismatched)
	if stats.missing+stats.mismatched > 0 {
		log.Warnf("%d problem file(s) found; affected entries were flagged Pending for re-sync.",
			stats.missing+stats.mismatched)
	}
	return nil
}

func hasAnyHash(h models.Hashes) bool {
	return h.BLAKE3 != "" || h.SHA256 != "" || h.CRC32 != "" || h.AutoV2 != ""
}
