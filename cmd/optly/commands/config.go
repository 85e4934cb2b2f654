package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/optly/internal/auth"
	"github.com/fivetwenty-io/optly/internal/client"
	"github.com/fivetwenty-io/optly/internal/constants"
	"github.com/fivetwenty-io/optly/pkg/optly"
	"github.com/fivetwenty-io/optly/pkg/optlyclient"
)

// tokenWarningWindow is how close to expiry a token must be before the CLI warns.
const tokenWarningWindow = 24 * time.Hour

// Config represents the CLI configuration.
type Config struct {
	API            string     `json:"api,omitempty"              yaml:"api,omitempty"`
	EventsEndpoint string     `json:"events_endpoint,omitempty"  yaml:"events_endpoint,omitempty"`
	Token          string     `json:"token,omitempty"            yaml:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty" yaml:"token_expires_at,omitempty"`
	ProjectID      int64      `json:"project_id,omitempty"       yaml:"project_id,omitempty"`
	AccountID      int64      `json:"account_id,omitempty"       yaml:"account_id,omitempty"`

	Output   string `json:"output,omitempty"    yaml:"output,omitempty"`
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	Verbose  bool   `json:"verbose,omitempty"   yaml:"verbose,omitempty"`

	DetailConcurrency int `json:"detail_concurrency,omitempty" yaml:"detail_concurrency,omitempty"`

	Cache      string `json:"cache,omitempty"       yaml:"cache,omitempty"`
	CacheSize  int    `json:"cache_size,omitempty"  yaml:"cache_size,omitempty"`
	CacheTTL   string `json:"cache_ttl,omitempty"   yaml:"cache_ttl,omitempty"`
	NATSURL    string `json:"nats_url,omitempty"    yaml:"nats_url,omitempty"`
	NATSBucket string `json:"nats_bucket,omitempty" yaml:"nats_bucket,omitempty"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  "Manage the optly CLI configuration stored in ~/.optly/config.yml",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigSetTokenCommand())
	cmd.AddCommand(newConfigClearCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the effective configuration (file, environment and flags combined) with the token masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			tokenManager := auth.NewConfigTokenManager(nil, config.Token, tokenExpiry(config))
			if config.Token != "" && tokenManager.IsTokenExpiringSoon(tokenWarningWindow) {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: access token expires at %s\n",
					tokenManager.GetTokenExpiry().Format(time.RFC3339))
			}

			return showConfig(cmd.OutOrStdout(), config, viper.GetString("output"))
		},
	}
}

func showConfig(w io.Writer, config *Config, format string) error {
	masked := *config
	masked.Token = maskToken(config.Token)

	switch format {
	case constants.FormatJSON:
		return writeJSON(w, masked)
	case constants.FormatYAML:
		return writeYAML(w, masked)
	}

	properties := map[string]string{
		"api":             masked.API,
		"events_endpoint": masked.EventsEndpoint,
		"token":           masked.Token,
		"project_id":      strconv.FormatInt(masked.ProjectID, 10),
		"account_id":      strconv.FormatInt(masked.AccountID, 10),
		"output":          masked.Output,
		"log_level":       masked.LogLevel,
		"cache":           masked.Cache,
	}

	if masked.TokenExpiresAt != nil {
		properties["token_expires_at"] = masked.TokenExpiresAt.Format(time.RFC3339)
	}

	if masked.NATSURL != "" {
		properties["nats_url"] = masked.NATSURL
	}

	return renderProperties(w, properties)
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Long: `Set a configuration value in the config file.

Keys: api, events_endpoint, project_id, account_id, output, log_level,
detail_concurrency, cache, cache_size, cache_ttl, nats_url, nats_bucket`,
		Args: cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFilePath()

			config, err := readConfigFile(path)
			if err != nil {
				return err
			}

			err = setConfigValue(config, args[0], args[1])
			if err != nil {
				return err
			}

			err = writeConfigFile(path, config)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Set %s\n", args[0])

			return nil
		},
	}
}

// setConfigValue validates and applies one key. Tokens go through set-token.
func setConfigValue(config *Config, key, value string) error {
	switch key {
	case "api":
		config.API = value
	case "events_endpoint":
		config.EventsEndpoint = value
	case "project_id", "account_id":
		id, err := cast.ToInt64E(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}

		if key == "project_id" {
			config.ProjectID = id
		} else {
			config.AccountID = id
		}
	case "output":
		err := validateOutput(value)
		if err != nil {
			return err
		}

		config.Output = value
	case "log_level":
		config.LogLevel = value
	case "cache":
		cacheType, err := optly.ParseCacheType(value)
		if err != nil {
			return err
		}

		config.Cache = string(cacheType)
	case "detail_concurrency":
		concurrency, err := cast.ToIntE(value)
		if err != nil {
			return fmt.Errorf("invalid detail_concurrency %q: %w", value, err)
		}

		config.DetailConcurrency = concurrency
	case "cache_size":
		size, err := cast.ToIntE(value)
		if err != nil {
			return fmt.Errorf("invalid cache_size %q: %w", value, err)
		}

		config.CacheSize = size
	case "cache_ttl":
		_, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid cache_ttl %q: %w", value, err)
		}

		config.CacheTTL = value
	case "nats_url":
		config.NATSURL = value
	case "nats_bucket":
		config.NATSBucket = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownConfigKey, key)
	}

	return nil
}

func newConfigSetTokenCommand() *cobra.Command {
	var (
		expiresAt string
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "set-token [TOKEN]",
		Short: "Store a personal access token",
		Long:  "Store a personal access token in the config file. Without an argument the token is read from the terminal or stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if expiresAt != "" && expiresIn > 0 {
				return fmt.Errorf("%w: --expires-at and --expires-in", ErrConflictingOptions)
			}

			token := ""
			if len(args) == 1 {
				token = args[0]
			} else {
				var err error

				token, err = promptToken(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}

			token = auth.NormalizeToken(token)
			if token == "" {
				return ErrTokenRequired
			}

			var expiry time.Time

			switch {
			case expiresAt != "":
				parsed, err := cast.ToTimeE(expiresAt)
				if err != nil {
					return fmt.Errorf("invalid --expires-at %q: %w", expiresAt, err)
				}

				expiry = parsed
			case expiresIn > 0:
				expiry = time.Now().Add(expiresIn)
			}

			tokenManager := auth.NewConfigTokenManager(NewConfigPersister(), "", time.Time{})
			tokenManager.SetToken(token, expiry)

			err := tokenManager.PersistError()
			if err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Token saved (%s)\n", maskToken(token))

			return nil
		},
	}

	cmd.Flags().StringVar(&expiresAt, "expires-at", "", "token expiry time (RFC 3339)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "token lifetime, e.g. 720h")

	return cmd
}

// promptToken reads a token without echo on a terminal, or one line otherwise.
func promptToken(in io.Reader, prompt io.Writer) (string, error) {
	if file, ok := in.(*os.File); ok && term.IsTerminal(int(file.Fd())) { // #nosec G115 -- file descriptors fit in int
		_, _ = fmt.Fprint(prompt, "Access token: ")

		tokenBytes, err := term.ReadPassword(int(file.Fd())) // #nosec G115 -- file descriptors fit in int
		_, _ = fmt.Fprintln(prompt)

		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}

		return string(tokenBytes), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read token: %w", err)
	}

	return strings.TrimSpace(line), nil
}

func newConfigClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear configuration",
		Long:  "Remove the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := os.Remove(configFilePath())
			if err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove config file: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Cleared configuration")

			return nil
		},
	}
}

// loadConfig returns the effective configuration from viper.
func loadConfig() *Config {
	config := &Config{
		API:            viper.GetString("api"),
		EventsEndpoint: viper.GetString("events_endpoint"),
		Token:          viper.GetString("token"),
		ProjectID:      viper.GetInt64("project_id"),
		AccountID:      viper.GetInt64("account_id"),
		Output:         viper.GetString("output"),
		LogLevel:       viper.GetString("log_level"),
		Verbose:        viper.GetBool("verbose"),
		Cache:          viper.GetString("cache"),
		CacheSize:      viper.GetInt("cache_size"),
		CacheTTL:       viper.GetString("cache_ttl"),
		NATSURL:        viper.GetString("nats_url"),
		NATSBucket:     viper.GetString("nats_bucket"),

		DetailConcurrency: viper.GetInt("detail_concurrency"),
	}

	if viper.IsSet("token_expires_at") {
		expiry := viper.GetTime("token_expires_at")
		if !expiry.IsZero() {
			config.TokenExpiresAt = &expiry
		}
	}

	return config
}

func tokenExpiry(config *Config) time.Time {
	if config.TokenExpiresAt != nil {
		return *config.TokenExpiresAt
	}

	return time.Time{}
}

// configFilePath returns the config file in use, or ~/.optly/config.yml.
func configFilePath() string {
	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		return configFile
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".optly", "config.yml")
	}

	return filepath.Join(home, ".optly", "config.yml")
}

// readConfigFile loads only what is stored on disk. A missing file is empty.
func readConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is the CLI's own config file
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}

		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}

	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

func writeConfigFile(path string, config *Config) error {
	err := os.MkdirAll(filepath.Dir(path), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	err = os.WriteFile(path, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// buildCacheConfig maps the cache settings onto optly.CacheConfig. An empty
// or "none" cache returns nil.
func buildCacheConfig(config *Config) (*optly.CacheConfig, error) {
	cacheType, err := optly.ParseCacheType(config.Cache)
	if err != nil {
		return nil, err
	}

	if cacheType == optly.CacheTypeNone {
		return nil, nil
	}

	options := optly.DefaultCacheOptions()

	if config.CacheTTL != "" {
		ttl, err := time.ParseDuration(config.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid cache_ttl %q: %w", config.CacheTTL, err)
		}

		options.TTL = ttl
	}

	builder := optly.NewCacheBuilder().WithType(cacheType)

	if cacheType == optly.CacheTypeMemory || cacheType == optly.CacheTypeLayered {
		size := config.CacheSize
		if size <= 0 {
			size = constants.DefaultCacheSize
		}

		options.MaxSize = size
		builder.WithMemoryConfig(size)
	}

	if cacheType == optly.CacheTypeNATS || cacheType == optly.CacheTypeLayered {
		builder.WithNATSConfig(&optly.NATSKVConfig{
			URL:    config.NATSURL,
			Bucket: config.NATSBucket,
			TTL:    options.TTL,
		})
	}

	return builder.WithOptions(options).Config(), nil
}

// buildOptlyConfig converts CLI settings into a library config.
func buildOptlyConfig(config *Config, logger optly.Logger) (*optly.Config, error) {
	cacheConfig, err := buildCacheConfig(config)
	if err != nil {
		return nil, err
	}

	apiEndpoint := config.API
	if apiEndpoint == "" {
		apiEndpoint = constants.DefaultAPIEndpoint
	}

	eventsEndpoint := config.EventsEndpoint
	if eventsEndpoint == "" {
		eventsEndpoint = constants.DefaultEventsEndpoint
	}

	return &optly.Config{
		APIEndpoint:    strings.TrimSuffix(apiEndpoint, "/"),
		EventsEndpoint: eventsEndpoint,
		AccessToken:    config.Token,
		TokenExpiresAt: tokenExpiry(config),
		ProjectID:      config.ProjectID,
		AccountID:      config.AccountID,
		Debug:          config.Verbose,
		Logger:         logger,
		Cache:          cacheConfig,

		DetailConcurrency: config.DetailConcurrency,
	}, nil
}

// createClient builds a client from the effective configuration. Tokens are
// served through a ConfigTokenManager so expiry is tracked.
func createClient(cmd *cobra.Command) (optly.Client, error) {
	return createClientFromConfig(loadConfig(), cmd.ErrOrStderr())
}

func createClientFromConfig(config *Config, logOutput io.Writer) (optly.Client, error) {
	logLevel := config.LogLevel
	if config.Verbose {
		logLevel = "debug"
	}

	logger := NewLogger(logOutput, logLevel)

	optlyConfig, err := buildOptlyConfig(config, logger)
	if err != nil {
		return nil, err
	}

	if config.Token == "" {
		cli, err := optlyclient.New(optlyConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create client: %w", err)
		}

		return cli, nil
	}

	tokenManager := auth.NewConfigTokenManager(NewConfigPersister(), config.Token, tokenExpiry(config))
	if tokenManager.IsTokenExpiringSoon(tokenWarningWindow) {
		logger.Warn("access token expires soon", map[string]interface{}{
			"expires_at": tokenManager.GetTokenExpiry().Format(time.RFC3339),
		})
	}

	cli, err := client.NewWithTokenManager(optlyConfig, tokenManager)
	if err != nil {
		return nil, fmt.Errorf("failed to create client with token manager: %w", err)
	}

	return cli, nil
}
