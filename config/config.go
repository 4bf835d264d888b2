package config

import (
	"os"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/CIDgravity/snakelet"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	ErrMissingToken        = errors.New("github token is required: use --token or GITHUB_TOKEN")
	ErrMissingOrganization = errors.New("github organization is required")
)

// config structure
type Config struct {
	Github GithubConfig `mapstructure:"GITHUB"`
	API    APIConfig    `mapstructure:"API"`
	Tasks  TasksConfig  `mapstructure:"TASKS"`
	Logs   LogsConfig   `mapstructure:"LOGS"`
}

type GithubConfig struct {
	Token           string `mapstructure:"Token"` // never logged
	Org             string `mapstructure:"Org"`
	IncludeArchived bool   `mapstructure:"IncludeArchived"`
	BaseURL         string `mapstructure:"BaseURL"`         // trailing slash required by go-github
	RequestsPerHour int    `mapstructure:"RequestsPerHour"` // 0 disables local rate limiting
}

type APIConfig struct {
	ListenPort string `mapstructure:"ListenPort"`
}

type TasksConfig struct {
	MaxParallelTasksAllowed int `mapstructure:"MaxParallelTasksAllowed"`
}

type LogsConfig struct {
	Level            string `mapstructure:"Level"` // error | warn | info | debug - case insensitive
	OutputLogsAsJSON bool   `mapstructure:"OutputLogsAsJson"`
}

// flagBindings maps config keys to the command line flags overriding them
// the token is the only one also bindable from the environment
var flagBindings = map[string]string{
	"github.token":    "token",
	"github.org":      "org",
	"github.archived": "archived",
	"github.baseurl":  "base-url",
	"api.port":        "port",
	"logs.level":      "log-level",
}

// Load returns the configuration built from defaults, the optional config file,
// the environment and finally the command line flags
func Load(configFilePath string, flags *pflag.FlagSet) (*Config, error) {
	cfg := GetDefault()

	path, err := locateConfigFile(configFilePath)
	if err != nil {
		return nil, err
	}

	// load default and config file content
	if path != "" {
		if _, err := snakelet.InitAndLoad(cfg, path); err != nil {
			return nil, errors.Wrapf(err, "unable to load configuration file %s", path)
		}
	}

	if err := applyOverrides(cfg, flags); err != nil {
		return nil, err
	}

	return cfg, nil
}

// locateConfigFile returns the config file to load, or an empty string when none is available
// an explicit path must exist, the default locations are optional
func locateConfigFile(configFilePath string) (string, error) {
	if configFilePath != "" {
		if _, err := os.Stat(configFilePath); err != nil {
			return "", errors.Wrapf(err, "configuration file %s", configFilePath)
		}

		return configFilePath, nil
	}

	dir, err := filepath.Abs(filepath.Dir(os.Args[0]))
	if err != nil {
		return "", err
	}

	for _, candidate := range []string{filepath.Join(dir, "config", "config.toml"), filepath.Join("config", "config.toml")} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", nil
}

// applyOverrides binds the flags and the environment with viper
// only values explicitly set by the user override the file content
func applyOverrides(cfg *Config, flags *pflag.FlagSet) error {
	v := viper.New()

	if err := v.BindEnv("github.token", "GITHUB_TOKEN"); err != nil {
		return err
	}

	if flags != nil {
		for key, name := range flagBindings {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}

			if err := v.BindPFlag(key, flag); err != nil {
				return errors.Wrapf(err, "unable to bind flag %s", name)
			}
		}
	}

	if v.IsSet("github.token") {
		cfg.Github.Token = v.GetString("github.token")
	}

	if v.IsSet("github.org") {
		cfg.Github.Org = v.GetString("github.org")
	}

	if v.IsSet("github.archived") {
		cfg.Github.IncludeArchived = v.GetBool("github.archived")
	}

	if v.IsSet("github.baseurl") {
		cfg.Github.BaseURL = v.GetString("github.baseurl")
	}

	if v.IsSet("api.port") {
		cfg.API.ListenPort = v.GetString("api.port")
	}

	if v.IsSet("logs.level") {
		cfg.Logs.Level = v.GetString("logs.level")
	}

	return nil
}

// Validate checks the values required to query github
func (c Config) Validate() error {
	if c.Github.Token == "" {
		return ErrMissingToken
	}

	if c.Github.Org == "" {
		return ErrMissingOrganization
	}

	return nil
}

// GetDefault
func GetDefault() *Config {
	return &Config{
		Github: GithubConfig{
			Org:             "microsoft",
			BaseURL:         "https://api.github.com/",
			RequestsPerHour: 5000,
		},
		API: APIConfig{
			ListenPort: "5000",
		},
		Tasks: TasksConfig{
			MaxParallelTasksAllowed: 8,
		},
		Logs: LogsConfig{
			Level:            "error",
			OutputLogsAsJSON: false,
		},
	}
}
