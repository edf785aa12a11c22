package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/talent-radar/internal/ai/gemini"
	"github.com/spigell/talent-radar/internal/api"
	"github.com/spigell/talent-radar/internal/dispatcher"
	"github.com/spigell/talent-radar/internal/filtering"
	"github.com/spigell/talent-radar/internal/ranker"
	"github.com/spigell/talent-radar/internal/signals"
	"github.com/spigell/talent-radar/internal/vectorindex"
)

const (
	app = "talent-radar"
)

type Config struct {
	Database DatabaseConfig     `mapstructure:"database"`
	Index    IndexConfig        `mapstructure:"index"`
	Signals  signals.Config     `mapstructure:"signals"`
	Ranker   ranker.Config      `mapstructure:"ranker"`
	Digest   dispatcher.Config  `mapstructure:"digest"`
	Filters  filtering.Config   `mapstructure:"filters"`
	AI       *AIConfig          `mapstructure:"ai"`
	Server   ServerConfig       `mapstructure:"server"`
	Notify   NotificationConfig `mapstructure:"notify"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type IndexConfig struct {
	vectorindex.Config `mapstructure:",squash"`
	// CompactRatio is the tombstone share that triggers a compaction.
	CompactRatio float64 `mapstructure:"compact-ratio"`
}

type AIConfig struct {
	Gemini *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	gemini.Config `mapstructure:",squash"`
	APIKeyFile    string `mapstructure:"api-key-file"`
}

type ServerConfig struct {
	api.Config      `mapstructure:",squash"`
	CompactInterval time.Duration `mapstructure:"compact-interval"`
	RefreshInterval time.Duration `mapstructure:"refresh-interval"`
}

type NotificationConfig struct {
	// Sink is "store" (outbox table) or "log".
	Sink         string `mapstructure:"sink"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "talent-radar matches candidates to jobs and tracks company hiring velocity",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("database.path", "TALENT_RADAR_DB"); err != nil {
		log.Fatalf("binding TALENT_RADAR_DB environment variable: %v", err)
	}
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	setDefaults()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is talent-radar.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults() {
	viper.SetDefault("database.path", "talent-radar.db")

	viper.SetDefault("index.strategy", vectorindex.StrategyBruteForce)
	viper.SetDefault("index.dimension", 768)
	viper.SetDefault("index.lists", 32)
	viper.SetDefault("index.probes", 4)
	viper.SetDefault("index.train-size", 1024)
	viper.SetDefault("index.compact-ratio", 0.2)

	viper.SetDefault("signals.window", 7*24*time.Hour)
	viper.SetDefault("signals.min-volume", 5)
	viper.SetDefault("signals.high", 0.5)
	viper.SetDefault("signals.low", -0.3)

	def := ranker.DefaultConfig()
	viper.SetDefault("ranker.weights.similarity", def.Weights.Similarity)
	viper.SetDefault("ranker.weights.velocity", def.Weights.Velocity)
	viper.SetDefault("ranker.bounds.min-velocity", def.Bounds.MinVelocity)
	viper.SetDefault("ranker.bounds.max-velocity", def.Bounds.MaxVelocity)

	viper.SetDefault("digest.threshold", 0.75)
	viper.SetDefault("digest.k", 5)
	viper.SetDefault("digest.concurrency", 4)
	viper.SetDefault("digest.timeout", 30*time.Second)

	viper.SetDefault("filters.skip-applied", true)

	viper.SetDefault("ai.gemini.dimension", 768)
	viper.SetDefault("ai.gemini.max-retries", 3)

	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.query.threshold", 0.5)
	viper.SetDefault("server.query.k", 10)
	viper.SetDefault("server.compact-interval", 10*time.Minute)
	viper.SetDefault("server.refresh-interval", time.Hour)

	viper.SetDefault("notify.sink", "store")
}

func initConfig() {
	// A missing .env is fine; values may come from the real environment.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Defaults are enough to run without a config file, but a broken one is fatal.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
