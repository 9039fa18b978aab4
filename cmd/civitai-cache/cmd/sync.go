package cmd

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/zeebo/blake3"

	"go-civitai-cache/internal/api"
	"go-civitai-cache/internal/config"
	"go-civitai-cache/internal/database"
	"go-civitai-cache/internal/downloader"
	"go-civitai-cache/internal/index"
	"go-civitai-cache/internal/models"
	"go-civitai-cache/internal/paths"
)

var (
	syncConcurrencyFlag  int
	syncTagFlag          string
	syncQueryFlag        string
	syncModelTypesFlag   []string
	syncNsfwFlag         bool
	syncLimitFlag        int
	syncMaxPagesFlag     int
	syncSortFlag         string
	syncPeriodFlag       string
	syncPrimaryOnlyFlag  bool
	syncSaveMediaFlag    bool
	syncSaveMetadataFlag bool
	syncMetaOnlyFlag     bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch models from the Civitai API and reconcile them into the local cache",
	Long: `Fetches model pages matching the configured query, projects every model and
version to its canonical form, and downloads files and media into the
deterministic cache layout. Already-cached files are skipped.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	f := syncCmd.Flags()
	f.IntVarP(&syncConcurrencyFlag, "concurrency", "c", 4, "Number of concurrent download workers")
	f.StringVarP(&syncTagFlag, "tag", "t", "", "Filter models by tag")
	f.StringVarP(&syncQueryFlag, "query", "q", "", "Filter models by search query")
	f.StringSliceVarP(&syncModelTypesFlag, "model-types", "m", []string{}, "Filter by model type (Checkpoint, LORA, ...)")
	f.BoolVar(&syncNsfwFlag, "nsfw", true, "Include NSFW models")
	f.IntVarP(&syncLimitFlag, "limit", "l", 100, "Results per API page (max 100)")
	f.IntVarP(&syncMaxPagesFlag, "max-pages", "p", 10, "Maximum number of pages to fetch (0 = no limit)")
	f.StringVar(&syncSortFlag, "sort", "Most Downloaded", "Sort order")
	f.StringVar(&syncPeriodFlag, "period", "AllTime", "Time period for sort")
	f.BoolVar(&syncPrimaryOnlyFlag, "primary-only", false, "Only download each version's primary file")
	f.BoolVar(&syncSaveMediaFlag, "media", false, "Also download version media (images/videos)")
	f.BoolVar(&syncSaveMetadataFlag, "metadata", true, "Write .meta files alongside cached content")
	f.BoolVar(&syncMetaOnlyFlag, "meta-only", false, "Reconcile metadata and database only, download nothing")
}

func collectSyncFlags(cmd *cobra.Command) *config.CliSyncFlags {
	flags := &config.CliSyncFlags{}
	if cmd.Flags().Changed("concurrency") {
		flags.Concurrency = &syncConcurrencyFlag
	}
	if cmd.Flags().Changed("tag") {
		flags.Tag = &syncTagFlag
	}
	if cmd.Flags().Changed("query") {
		flags.Query = &syncQueryFlag
	}
	if cmd.Flags().Changed("model-types") {
		flags.ModelTypes = &syncModelTypesFlag
	}
	if cmd.Flags().Changed("nsfw") {
		flags.Nsfw = &syncNsfwFlag
	}
	if cmd.Flags().Changed("limit") {
		flags.Limit = &syncLimitFlag
	}
	if cmd.Flags().Changed("max-pages") {
		flags.MaxPages = &syncMaxPagesFlag
	}
	if cmd.Flags().Changed("sort") {
		flags.Sort = &syncSortFlag
	}
	if cmd.Flags().Changed("period") {
		flags.Period = &syncPeriodFlag
	}
	if cmd.Flags().Changed("primary-only") {
		flags.PrimaryOnly = &syncPrimaryOnlyFlag
	}
	if cmd.Flags().Changed("media") {
		flags.SaveMedia = &syncSaveMediaFlag
	}
	if cmd.Flags().Changed("metadata") {
		flags.SaveMetadata = &syncSaveMetadataFlag
	}
	if cmd.Flags().Changed("meta-only") {
		flags.MetaOnly = &syncMetaOnlyFlag
	}
	return flags
}

// versionJob is one version to reconcile into the cache.
type versionJob struct {
	ModelCore models.ModelCore
	Version   models.ModelVersion
	ModelType string
}

// queryHash derives a stable key for saved pagination state from the query
// parameters, so different queries resume independently.
func queryHash(params models.QueryParameters) string {
	data, err := json.Marshal(params)
	if err != nil {
		return "default"
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

func buildQueryParams(cfg models.Config) models.QueryParameters {
	return models.QueryParameters{
		Query:           cfg.Sync.Query,
		Tag:             cfg.Sync.Tag,
		Sort:            cfg.Sync.Sort,
		Period:          cfg.Sync.Period,
		Types:           cfg.Sync.ModelTypes,
		Limit:           cfg.Sync.Limit,
		Nsfw:            cfg.Sync.Nsfw,
		PrimaryFileOnly: cfg.Sync.PrimaryOnly,
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := globalConfig

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	bleveIndex, err := index.OpenOrCreateIndex(cfg.BleveIndexPath)
	if err != nil {
		return fmt.Errorf("opening search index: %w", err)
	}
	defer bleveIndex.Close()

	httpClient := &http.Client{
		Timeout:   time.Duration(cfg.APIClientTimeoutSec) * time.Second,
		Transport: globalHttpTransport,
	}
	client := api.NewClient(cfg.APIKey, httpClient, cfg)

	jobs, failures, err := fetchAndPlan(cmd.Context(), client, db, cfg)
	if err != nil {
		return err
	}
	if failures > 0 {
		log.Warnf("%d media items were excluded during normalization (unrecoverable ids).", failures)
	}
	if len(jobs) == 0 {
		log.Info("Nothing to reconcile.")
		return nil
	}

	log.Infof("Reconciling %d versions with %d workers...", len(jobs), cfg.Sync.Concurrency)
	stats := runWorkers(cmd.Context(), jobs, db, bleveIndex, cfg)

	log.Infof("Sync complete. Versions: %d, Files downloaded: %d, Media downloaded: %d, Errors: %d",
		len(jobs), stats.filesDownloaded.Load(), stats.mediaDownloaded.Load(), stats.errors.Load())
	if stats.errors.Load() > 0 {
		return fmt.Errorf("%d versions failed to reconcile", stats.errors.Load())
	}
	return nil
}

// fetchAndPlan walks the paginated model list, classifies each payload, and
// expands models into per-version jobs. The pagination cursor is persisted
// per query so an interrupted sync resumes where it stopped.
func fetchAndPlan(ctx context.Context, client *api.Client, db *database.DB, cfg models.Config) ([]versionJob, int, error) {
	queryParams := buildQueryParams(cfg)
	qh := queryHash(queryParams)

	cursor, err := db.GetPageState(qh)
	if err != nil {
		log.WithError(err).Warn("Could not read saved page state, starting from the first page.")
		cursor = ""
	}
	if cursor != "" {
		log.Infof("Resuming pagination from saved cursor: %s", cursor)
	}

	var jobs []versionJob
	mediaFailures := 0
	pageCount := 0

	for {
		if err := ctx.Err(); err != nil {
			return jobs, mediaFailures, err
		}

		pageCount++
		log.Infof("--- Fetching model page %d (cursor: %q) ---", pageCount, cursor)

		nextCursor, response, err := client.GetModels(cursor, queryParams)
		if err != nil {
			return nil, mediaFailures, fmt.Errorf("fetching models page %d: %w", pageCount, err)
		}

		for i := range response.Items {
			model := &response.Items[i]
			log.Debugf("Model %d (%s) classified as %s with %d versions",
				model.ID, model.Name, model.Kind(), len(model.Versions))

			core := model.Core()
			for j := range model.Versions {
				version := model.Versions[j]

				normalized, failures := models.NormalizeMedia(version.Media)
				for _, f := range failures {
					log.WithError(f.Err).Warnf("Excluding media item with unrecoverable id: %s", f.URL)
				}
				mediaFailures += len(failures)
				version.Media = normalized

				jobs = append(jobs, versionJob{
					ModelCore: core,
					Version:   version,
					ModelType: model.Type,
				})
			}
		}

		if nextCursor == "" {
			log.Info("No next cursor, pagination finished.")
			if err := db.DeletePageState(qh); err != nil {
				log.WithError(err).Warn("Failed to clear saved page state.")
			}
			break
		}

		cursor = nextCursor
		if err := db.SetPageState(qh, cursor); err != nil {
			log.WithError(err).Warn("Failed to persist page state.")
		}

		if cfg.Sync.MaxPages > 0 && pageCount >= cfg.Sync.MaxPages {
			log.Infof("Reached configured page limit (%d), stopping fetch.", cfg.Sync.MaxPages)
			break
		}

		if cfg.APIDelayMs > 0 {
			time.Sleep(time.Duration(cfg.APIDelayMs) * time.Millisecond)
		}
	}

	return jobs, mediaFailures, nil
}

func runWorkers(ctx context.Context, jobs []versionJob, db *database.DB, bleveIndex bleve.Index, cfg models.Config) *syncStats {
	concurrency := cfg.Sync.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	httpClient := &http.Client{Timeout: 15 * time.Minute, Transport: globalHttpTransport}
	fileDownloader := downloader.NewDownloader(httpClient, cfg.APIKey)

	layout := paths.NewLayout(cfg.SavePath)

	jobCh := make(chan versionJob, concurrency)
	var wg sync.WaitGroup
	stats := &syncStats{}

	for i := 1; i <= concurrency; i++ {
		wg.Add(1)
		go syncWorker(ctx, i, jobCh, &wg, writer, syncWorkerDeps{
			db:         db,
			index:      bleveIndex,
			downloader: fileDownloader,
			layout:     layout,
			cfg:        cfg,
			total:      len(jobs),
			stats:      stats,
		})
	}

	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()

	return stats
}
