// Package config loads process configuration the way the teacher's CLI
// does: cobra flags bound through viper, with environment variables as
// the primary source for the secrets spec.md §6 names. A config file is
// optional and, if present, takes precedence over flag defaults but not
// over explicit flags or environment variables.
package config

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds everything the process needs to wire its dependency
// graph. DatabaseURL empty means "use the in-memory repository".
type Config struct {
	HTTPPort    int
	LLMAPIBase  string
	LLMAPIKey   string
	DatabaseURL string
	FileStoreDir string
	StaleJobAge string // duration string, parsed by the caller
}

// RegisterFlags attaches the flags Load reads. Call once per
// cobra.Command before Execute.
func RegisterFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "path to a config file (optional)")
	cmd.Flags().Int("http-port", 8080, "HTTP listen port")
	cmd.Flags().String("llm-api-base", "", "base URL for the LLM API (overrides LLM_API_BASE)")
	cmd.Flags().String("llm-api-key", "", "API key for the LLM API (overrides LLM_API_KEY)")
	cmd.Flags().String("database-url", "", "Postgres connection string (overrides DATABASE_URL); empty selects the in-memory repository")
	cmd.Flags().String("file-store-dir", "./data/files", "directory backing the uploaded-file content store")
	cmd.Flags().String("stale-job-age", "1h", "age after which a still-Running/Pending job is swept as interrupted on startup")
	return viper.BindPFlags(cmd.Flags())
}

// Load reads the bound flags, a config file (if given and present), and
// environment variables — in viper's usual override order, with
// environment variables taking priority over file-sourced defaults for
// the three names spec.md §6 calls out explicitly.
func Load(cmd *cobra.Command) (Config, error) {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return Config{}, err
	}
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, err
			}
		}
	}

	cfg := Config{
		HTTPPort:     viper.GetInt("http-port"),
		LLMAPIBase:   firstNonEmpty(viper.GetString("llm-api-base"), viper.GetString("LLM_API_BASE")),
		LLMAPIKey:    firstNonEmpty(viper.GetString("llm-api-key"), viper.GetString("LLM_API_KEY")),
		DatabaseURL:  firstNonEmpty(viper.GetString("database-url"), viper.GetString("DATABASE_URL")),
		FileStoreDir: viper.GetString("file-store-dir"),
		StaleJobAge:  viper.GetString("stale-job-age"),
	}
	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
