package config

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"go-civitai-cache/internal/api"
	"go-civitai-cache/internal/models"
)

// Default values for configuration
const (
	DefaultSavePath            = "cache"
	DefaultLogApiRequests      = false
	DefaultAPIDelayMs          = 500
	DefaultAPIClientTimeoutSec = 60
	DefaultMaxRetries          = 3
	DefaultInitialRetryDelayMs = 1000
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultConfigFilePath      = "config.toml"

	// Sync specific defaults
	DefaultSyncConcurrency = 4
	DefaultSyncNsfw        = true
	DefaultSyncLimit       = 100
	DefaultSyncMaxPages    = 10
	DefaultSyncSort        = "Most Downloaded"
	DefaultSyncPeriod      = "AllTime"

	// Torrent specific defaults
	DefaultTorrentOutputDir   = "torrents"
	DefaultTorrentConcurrency = 2
)

// setViperDefaults configures Viper with the application's default values.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("apikey", "")
	v.SetDefault("savepath", DefaultSavePath)
	v.SetDefault("databasepath", "") // Derived from SavePath when empty
	v.SetDefault("bleveindexpath", "")
	v.SetDefault("logapirequests", DefaultLogApiRequests)
	v.SetDefault("apidelayms", DefaultAPIDelayMs)
	v.SetDefault("apiclienttimeoutsec", DefaultAPIClientTimeoutSec)
	v.SetDefault("maxretries", DefaultMaxRetries)
	v.SetDefault("initialretrydelayms", DefaultInitialRetryDelayMs)
	v.SetDefault("loglevel", DefaultLogLevel)
	v.SetDefault("logformat", DefaultLogFormat)

	v.SetDefault("sync.concurrency", DefaultSyncConcurrency)
	v.SetDefault("sync.tag", "")
	v.SetDefault("sync.query", "")
	v.SetDefault("sync.modeltypes", []string{})
	v.SetDefault("sync.nsfw", DefaultSyncNsfw)
	v.SetDefault("sync.limit", DefaultSyncLimit)
	v.SetDefault("sync.maxpages", DefaultSyncMaxPages)
	v.SetDefault("sync.sort", DefaultSyncSort)
	v.SetDefault("sync.period", DefaultSyncPeriod)
	v.SetDefault("sync.primaryonly", false)
	v.SetDefault("sync.savemedia", false)
	v.SetDefault("sync.savemetadata", true)
	v.SetDefault("sync.metaonly", false)

	v.SetDefault("torrent.outputdir", DefaultTorrentOutputDir)
	v.SetDefault("torrent.overwrite", false)
	v.SetDefault("torrent.magnetlinks", false)
	v.SetDefault("torrent.concurrency", DefaultTorrentConcurrency)
}

// CliFlags holds pointers to values received from command-line flags.
// Nil fields indicate the flag was not provided by the user.
type CliFlags struct {
	ConfigFilePath      *string
	LogLevel            *string // --log-level
	LogFormat           *string // --log-format
	LogApiRequests      *bool   // --log-api
	SavePath            *string // --save-path
	APIDelayMs          *int    // --api-delay
	APIClientTimeoutSec *int    // --api-timeout
	APIKey              *string // --api-key
	MaxRetries          *int    // --max-retries
	InitialRetryDelayMs *int    // --retry-delay

	Sync    *CliSyncFlags
	Torrent *CliTorrentFlags
}

type CliSyncFlags struct {
	Concurrency  *int      // -c
	Tag          *string   // -t
	Query        *string   // -q
	ModelTypes   *[]string // -m
	Nsfw         *bool     // --nsfw
	Limit        *int      // -l
	MaxPages     *int      // -p
	Sort         *string   // --sort
	Period       *string   // --period
	PrimaryOnly  *bool     // --primary-only
	SaveMedia    *bool     // --media
	SaveMetadata *bool     // --metadata
	MetaOnly     *bool     // --meta-only
}

type CliTorrentFlags struct {
	OutputDir   *string // -o
	Overwrite   *bool   // -f
	MagnetLinks *bool   // --magnet-links
	Concurrency *int    // -c
}

// Initialize loads configuration from defaults, the config file, environment,
// and flags. Precedence: Flags > Env > Config File > Defaults.
func Initialize(flags CliFlags) (models.Config, http.RoundTripper, error) {
	v := viper.New()
	v.SetEnvPrefix("CIVITAI_CACHE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setViperDefaults(v)

	configFilePath := DefaultConfigFilePath
	if flags.ConfigFilePath != nil {
		configFilePath = *flags.ConfigFilePath
	}
	v.SetConfigFile(configFilePath)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			log.Debugf("Config file '%s' not found, using defaults and flags.", configFilePath)
		} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Debugf("Config file '%s' not found, using defaults and flags.", configFilePath)
		} else {
			log.Warnf("Error reading config file '%s': %v. Using defaults and flags.", configFilePath, err)
		}
	} else {
		log.Infof("Read config file: %s", v.ConfigFileUsed())
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return models.Config{}, nil, fmt.Errorf("failed to unmarshal config from viper: %w", err)
	}

	applyFlagOverrides(&cfg, flags)

	// Derive storage paths from SavePath when not explicitly set.
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.SavePath, "civitai.db")
	}
	if cfg.BleveIndexPath == "" {
		cfg.BleveIndexPath = filepath.Join(cfg.SavePath, "civitai.bleve")
	}

	if cfg.SavePath == "" {
		return models.Config{}, nil, fmt.Errorf("SavePath cannot be empty (set via --save-path flag or SavePath in config)")
	}

	transport := setupTransport(cfg)

	return cfg, transport, nil
}

func applyFlagOverrides(cfg *models.Config, flags CliFlags) {
	if flags.APIKey != nil {
		cfg.APIKey = *flags.APIKey
	}
	if flags.SavePath != nil {
		cfg.SavePath = *flags.SavePath
		// A SavePath override invalidates derived paths from the config file
		// only when they were never explicitly set; leave non-empty paths be.
	}
	if flags.LogApiRequests != nil {
		cfg.LogApiRequests = *flags.LogApiRequests
	}
	if flags.APIDelayMs != nil {
		cfg.APIDelayMs = *flags.APIDelayMs
	}
	if flags.APIClientTimeoutSec != nil {
		cfg.APIClientTimeoutSec = *flags.APIClientTimeoutSec
	}
	if flags.MaxRetries != nil {
		cfg.MaxRetries = *flags.MaxRetries
	}
	if flags.InitialRetryDelayMs != nil {
		cfg.InitialRetryDelayMs = *flags.InitialRetryDelayMs
	}
	if flags.LogLevel != nil {
		cfg.LogLevel = *flags.LogLevel
	}
	if flags.LogFormat != nil {
		cfg.LogFormat = *flags.LogFormat
	}

	if flags.Sync != nil {
		s := flags.Sync
		if s.Concurrency != nil {
			cfg.Sync.Concurrency = *s.Concurrency
		}
		if s.Tag != nil {
			cfg.Sync.Tag = *s.Tag
		}
		if s.Query != nil {
			cfg.Sync.Query = *s.Query
		}
		if s.ModelTypes != nil && len(*s.ModelTypes) > 0 {
			cfg.Sync.ModelTypes = *s.ModelTypes
		}
		if s.Nsfw != nil {
			cfg.Sync.Nsfw = *s.Nsfw
		}
		if s.Limit != nil {
			cfg.Sync.Limit = *s.Limit
		}
		if s.MaxPages != nil {
			cfg.Sync.MaxPages = *s.MaxPages
		}
		if s.Sort != nil {
			cfg.Sync.Sort = *s.Sort
		}
		if s.Period != nil {
			cfg.Sync.Period = *s.Period
		}
		if s.PrimaryOnly != nil {
			cfg.Sync.PrimaryOnly = *s.PrimaryOnly
		}
		if s.SaveMedia != nil {
			cfg.Sync.SaveMedia = *s.SaveMedia
		}
		if s.SaveMetadata != nil {
			cfg.Sync.SaveMetadata = *s.SaveMetadata
		}
		if s.MetaOnly != nil {
			cfg.Sync.MetaOnly = *s.MetaOnly
		}
	}

	if flags.Torrent != nil {
		t := flags.Torrent
		if t.OutputDir != nil {
			cfg.Torrent.OutputDir = *t.OutputDir
		}
		if t.Overwrite != nil {
			cfg.Torrent.Overwrite = *t.Overwrite
		}
		if t.MagnetLinks != nil {
			cfg.Torrent.MagnetLinks = *t.MagnetLinks
		}
		if t.Concurrency != nil {
			cfg.Torrent.Concurrency = *t.Concurrency
		}
	}
}

// setupTransport wraps the default transport with API request logging when
// enabled.
func setupTransport(cfg models.Config) http.RoundTripper {
	baseTransport := http.DefaultTransport
	if !cfg.LogApiRequests {
		return baseTransport
	}

	logFilePath := "api.log"
	if cfg.SavePath != "" {
		if _, statErr := os.Stat(cfg.SavePath); statErr == nil {
			logFilePath = filepath.Join(cfg.SavePath, logFilePath)
		}
	}
	log.Infof("API logging to file: %s", logFilePath)

	loggingTransport, err := api.NewLoggingTransport(baseTransport, logFilePath)
	if err != nil {
		log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		return baseTransport
	}
	return loggingTransport
}
