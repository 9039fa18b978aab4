package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-civitai-cache/internal/config"
	"go-civitai-cache/internal/database"
	"go-civitai-cache/internal/helpers"
	"go-civitai-cache/internal/models"
	"go-civitai-cache/internal/paths"
)

var (
	torrentModelIDs        []int
	announceURLs           []string
	torrentOutputDirFlag   string
	torrentOverwriteFlag   bool
	torrentMagnetFlag      bool
	torrentConcurrencyFlag int
)

var torrentCmd = &cobra.Command{
	Use:   "torrent",
	Short: "Generate .torrent files for cached models (one per model directory)",
	Long: `Generates a BitTorrent metainfo (.torrent) file per cached model directory,
covering all of that model's cached versions and files. Requires at least one
tracker announce URL.`,
	RunE: runTorrent,
}

func init() {
	rootCmd.AddCommand(torrentCmd)

	f := torrentCmd.Flags()
	f.StringSliceVar(&announceURLs, "announce", []string{}, "Tracker announce URL (repeatable)")
	f.IntSliceVar(&torrentModelIDs, "model-id", []int{}, "Specific model ID(s) (default: all cached models)")
	f.StringVarP(&torrentOutputDirFlag, "output-dir", "o", "", "Directory for generated .torrent files (default: inside each model directory)")
	f.BoolVarP(&torrentOverwriteFlag, "overwrite", "f", false, "Overwrite existing .torrent files")
	f.BoolVar(&torrentMagnetFlag, "magnet-links", false, "Also write a .txt file with the magnet link")
	f.IntVarP(&torrentConcurrencyFlag, "concurrency", "c", 2, "Number of concurrent torrent generation workers")
}

func collectTorrentFlags(cmd *cobra.Command) *config.CliTorrentFlags {
	flags := &config.CliTorrentFlags{}
	if cmd.Flags().Changed("output-dir") {
		flags.OutputDir = &torrentOutputDirFlag
	}
	if cmd.Flags().Changed("overwrite") {
		flags.Overwrite = &torrentOverwriteFlag
	}
	if cmd.Flags().Changed("magnet-links") {
		flags.MagnetLinks = &torrentMagnetFlag
	}
	if cmd.Flags().Changed("concurrency") {
		flags.Concurrency = &torrentConcurrencyFlag
	}
	return flags
}

type torrentJob struct {
	SourcePath string
	ModelID    int
	ModelName  string
}

func runTorrent(cmd *cobra.Command, args []string) error {
	if len(announceURLs) == 0 {
		return errors.New("at least one --announce URL is required")
	}

	cfg := globalConfig
	concurrency := cfg.Torrent.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	layout := paths.NewLayout(cfg.SavePath)

	modelIDSet := make(map[int]struct{}, len(torrentModelIDs))
	for _, id := range torrentModelIDs {
		modelIDSet[id] = struct{}{}
	}

	// One job per model directory, regardless of how many versions it holds.
	jobsByDir := make(map[string]torrentJob)
	log.Info("Scanning cache entries to identify model directories...")
	err = db.FoldEntries(func(entry models.CacheEntry) error {
		if len(modelIDSet) > 0 {
			if _, wanted := modelIDSet[entry.ModelID]; !wanted {
				return nil
			}
		}
		if entry.Status != models.StatusDownloaded {
			return nil
		}

		modelDir := layout.ModelDir(entry.ModelType, entry.ModelID)
		if _, exists := jobsByDir[modelDir]; !exists {
			jobsByDir[modelDir] = torrentJob{
				SourcePath: modelDir,
				ModelID:    entry.ModelID,
				ModelName:  entry.ModelName,
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning cache entries: %w", err)
	}

	if len(jobsByDir) == 0 {
		log.Info("No downloaded models found to generate torrents for.")
		return nil
	}

	log.Infof("Generating torrents for %d model directories using %d workers...", len(jobsByDir), concurrency)

	jobs := make(chan torrentJob, concurrency)
	var wg sync.WaitGroup
	var successCounter, failureCounter atomic.Int64

	for i := 1; i <= concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for job := range jobs {
				logEntry := log.WithFields(log.Fields{
					"worker":  id,
					"modelID": job.ModelID,
					"model":   job.ModelName,
				})
				torrentPath, magnetURI, err := generateTorrentFile(job.SourcePath, announceURLs, cfg.Torrent)
				if err != nil {
					logEntry.WithError(err).Error("Torrent generation failed")
					failureCounter.Add(1)
					continue
				}
				logEntry.WithField("path", torrentPath).Info("Torrent generated")
				if magnetURI != "" {
					logEntry.Debugf("Magnet: %s", magnetURI)
				}
				successCounter.Add(1)
			}
		}(i)
	}

	for _, job := range jobsByDir {
		jobs <- job
	}
	close(jobs)
	wg.Wait()

	log.Infof("Torrent generation complete. Success: %d, Failed: %d", successCounter.Load(), failureCounter.Load())
	if failureCounter.Load() > 0 {
		return fmt.Errorf("%d torrents failed to generate", failureCounter.Load())
	}
	return nil
}

// generateTorrentFile builds a .torrent for sourcePath (a model directory) and
// optionally a magnet link file beside it.
func generateTorrentFile(sourcePath string, trackers []string, tcfg models.TorrentConfig) (string, string, error) {
	stat, err := os.Stat(sourcePath)
	if os.IsNotExist(err) {
		return "", "", fmt.Errorf("source path does not exist: %s", sourcePath)
	}
	if err != nil {
		return "", "", fmt.Errorf("stating source path %s: %w", sourcePath, err)
	}
	if !stat.IsDir() {
		return "", "", fmt.Errorf("source path is not a directory: %s", sourcePath)
	}

	torrentFileName := fmt.Sprintf("%s.torrent", filepath.Base(sourcePath))
	outPath := filepath.Join(sourcePath, torrentFileName)
	if tcfg.OutputDir != "" {
		if err := os.MkdirAll(tcfg.OutputDir, 0o750); err != nil {
			return "", "", fmt.Errorf("creating output directory %s: %w", tcfg.OutputDir, err)
		}
		outPath = filepath.Join(tcfg.OutputDir, torrentFileName)
	}

	if !tcfg.Overwrite {
		if _, err := os.Stat(outPath); err == nil {
			log.WithField("path", outPath).Info("Skipping existing torrent file (use --overwrite to replace)")
			return outPath, "", nil
		}
	}

	mi, info, err := buildMetainfo(sourcePath, trackers)
	if err != nil {
		return "", "", err
	}

	f, err := os.Create(helpers.SanitizePath(outPath))
	if err != nil {
		return "", "", fmt.Errorf("creating torrent file %s: %w", outPath, err)
	}
	if err := mi.Write(f); err != nil {
		f.Close()
		_ = os.Remove(outPath)
		return "", "", fmt.Errorf("writing torrent file %s: %w", outPath, err)
	}
	if err := f.Close(); err != nil {
		return "", "", fmt.Errorf("closing torrent file %s: %w", outPath, err)
	}

	magnetURI := buildMagnetURI(mi, info)
	if tcfg.MagnetLinks {
		magnetPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + "-magnet.txt"
		if err := os.WriteFile(helpers.SanitizePath(magnetPath), []byte(magnetURI), 0o600); err != nil {
			log.WithError(err).WithField("path", magnetPath).Error("Failed to write magnet link file")
		}
	}

	return outPath, magnetURI, nil
}

func buildMetainfo(sourcePath string, trackers []string) (*metainfo.MetaInfo, metainfo.Info, error) {
	validTrackers := make([]string, 0, len(trackers))
	for _, tracker := range trackers {
		parsed, err := url.Parse(tracker)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https" && parsed.Scheme != "udp") {
			log.WithField("tracker", tracker).Warn("Invalid or unsupported tracker URL, skipping.")
			continue
		}
		validTrackers = append(validTrackers, tracker)
	}
	if len(validTrackers) == 0 {
		return nil, metainfo.Info{}, errors.New("no valid tracker URLs")
	}

	mi := metainfo.MetaInfo{
		Announce:     validTrackers[0],
		AnnounceList: [][]string{validTrackers},
		CreatedBy:    "civitai-cache",
		CreationDate: time.Now().Unix(),
	}

	info := metainfo.Info{
		PieceLength: 512 * 1024,
		Name:        filepath.Base(sourcePath),
	}
	if err := info.BuildFromFilePath(sourcePath); err != nil {
		return nil, metainfo.Info{}, fmt.Errorf("building torrent info from %s: %w", sourcePath, err)
	}

	infoBytes, err := bencode.Marshal(info)
	if err != nil {
		return nil, metainfo.Info{}, fmt.Errorf("marshaling torrent info: %w", err)
	}
	mi.InfoBytes = infoBytes

	return &mi, info, nil
}

func buildMagnetURI(mi *metainfo.MetaInfo, info metainfo.Info) string {
	parts := []string{
		fmt.Sprintf("magnet:?xt=urn:btih:%s", mi.HashInfoBytes().HexString()),
		fmt.Sprintf("dn=%s", url.QueryEscape(info.Name)),
	}
	for _, tier := range mi.AnnounceList {
		for _, tracker := range tier {
			parts = append(parts, fmt.Sprintf("tr=%s", url.QueryEscape(tracker)))
		}
	}
	return strings.Join(parts, "&")
}
