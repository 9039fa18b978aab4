package cmd

import (
	"fmt"
	"net/http"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-civitai-cache/internal/api"
	"go-civitai-cache/internal/config"
	"go-civitai-cache/internal/models"
)

// Persistent flag values. Whether each was actually set is checked through
// cmd.Flags().Changed so unset flags never override the config file.
var (
	cfgFile        string
	logLevelFlag   string
	logFormatFlag  string
	logApiFlag     bool
	savePathFlag   string
	apiKeyFlag     string
	apiDelayFlag   int
	apiTimeoutFlag int
)

// globalConfig holds the merged configuration for the running command.
var globalConfig models.Config

// globalHttpTransport is the shared HTTP transport (base or logging-wrapped).
var globalHttpTransport http.RoundTripper

var rootCmd = &cobra.Command{
	Use:   "civitai-cache",
	Short: "A local, reconciled cache of Civitai models",
	Long: `civitai-cache maintains a local on-disk cache of Civitai models:
it ingests model and version payloads from the API, projects them to a
canonical form, and lays files out deterministically by model type, model id,
version id and file id.`,
	PersistentPreRunE: loadGlobalConfig,
}

// Execute runs the root command. Called once from main.
func Execute() {
	defer api.CloseAllLoggingTransports()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Configuration file path (default ./config.toml)")
	pf.StringVar(&logLevelFlag, "log-level", "info", "Logging level (trace, debug, info, warn, error, fatal, panic)")
	pf.StringVar(&logFormatFlag, "log-format", "text", "Logging format (text, json)")
	pf.BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to api.log (overrides config)")
	pf.StringVar(&savePathFlag, "save-path", "", "Cache base directory (overrides config)")
	pf.StringVar(&apiKeyFlag, "api-key", "", "Civitai API key (overrides config)")
	pf.IntVar(&apiDelayFlag, "api-delay", -1, "Delay between API calls in ms (overrides config)")
	pf.IntVar(&apiTimeoutFlag, "api-timeout", -1, "Timeout for API HTTP client in seconds (overrides config)")
}

// loadGlobalConfig merges defaults, the config file, environment, and flags,
// then configures logging and the shared HTTP transport.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	flags := config.CliFlags{}
	if cmd.Flags().Changed("config") {
		flags.ConfigFilePath = &cfgFile
	}
	if cmd.Flags().Changed("log-level") {
		flags.LogLevel = &logLevelFlag
	}
	if cmd.Flags().Changed("log-format") {
		flags.LogFormat = &logFormatFlag
	}
	if cmd.Flags().Changed("log-api") {
		flags.LogApiRequests = &logApiFlag
	}
	if cmd.Flags().Changed("save-path") {
		flags.SavePath = &savePathFlag
	}
	if cmd.Flags().Changed("api-key") {
		flags.APIKey = &apiKeyFlag
	}
	if cmd.Flags().Changed("api-delay") {
		flags.APIDelayMs = &apiDelayFlag
	}
	if cmd.Flags().Changed("api-timeout") {
		flags.APIClientTimeoutSec = &apiTimeoutFlag
	}

	collectCommandFlags(cmd, &flags)

	cfg, transport, err := config.Initialize(flags)
	if err != nil {
		return err
	}
	globalConfig = cfg
	globalHttpTransport = transport

	initLogging(cfg)
	return nil
}

// collectCommandFlags gathers subcommand flags into the CliFlags struct.
// Implemented per command file; root knows nothing about their flags.
func collectCommandFlags(cmd *cobra.Command, flags *config.CliFlags) {
	switch cmd.Name() {
	case "sync":
		flags.Sync = collectSyncFlags(cmd)
	case "torrent":
		flags.Torrent = collectTorrentFlags(cmd)
	}
}

func initLogging(cfg models.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
