package main

import (
	"fmt"
	"net/http"
	"os"

	"emperror.dev/errors"
	"github.com/Scalingo/github-repo-stats/config"
	"github.com/Scalingo/github-repo-stats/logger"
	"github.com/Scalingo/github-repo-stats/model"
	"github.com/Scalingo/github-repo-stats/service"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// stamped at build time with -ldflags "-X main.version=..."
var version = "dev"

// configurationError marks errors caused by the user input rather than github
type configurationError struct {
	error
}

func (e configurationError) Unwrap() error { return e.error }

func main() {
	rootCmd := newRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(mapErrorToExitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "github-repo-stats [org...]",
		Short: "Retrieve GitHub repo stats",
		Long: `Retrieve the repositories of a GitHub organization and print them as CSV
with the columns name, topics, language and size.

Archived repositories are skipped unless --archived is set.
The token can be given with --token or the GITHUB_TOKEN environment variable.`,
		Args:          cobra.ArbitraryArgs,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeList(cmd, configFile, args)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path of a TOML configuration file (default: config/config.toml when present)")
	flags.StringP("token", "g", "", "GitHub token (also read from GITHUB_TOKEN)")
	flags.StringP("org", "o", "microsoft", "Organization")
	flags.BoolP("archived", "a", false, "Consider archived repositories")
	flags.String("base-url", "", "GitHub API base URL (default: https://api.github.com/)")
	flags.String("log-level", "", "Log level: error, warn, info or debug")

	rootCmd.AddCommand(newListCommand(&configFile), newServeCommand(&configFile))

	return rootCmd
}

// setup loads the configuration and builds the github service shared by all commands
func setup(cmd *cobra.Command, configFile string) (*config.Config, service.GithubService, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, configurationError{err}
	}

	logger.Setup(*cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, configurationError{err}
	}

	githubClient, err := service.NewGithubClient(cfg.Github.Token, cfg.Github.BaseURL, version, nil)
	if err != nil {
		return nil, nil, configurationError{err}
	}

	log.WithFields(log.Fields{
		"org":             cfg.Github.Org,
		"archived":        cfg.Github.IncludeArchived,
		"requestsPerHour": cfg.Github.RequestsPerHour,
	}).Debug("github service configured")

	rateLimiter := service.NewRateLimiter(cfg.Github.RequestsPerHour)

	return cfg, service.NewGithubService(*cfg, githubClient, rateLimiter), nil
}

// mapErrorToExitCode maps internal errors to appropriate exit codes
func mapErrorToExitCode(err error) int {
	if err == nil {
		return 0
	}

	var cfgErr configurationError
	if errors.As(err, &cfgErr) {
		return 4
	}

	if errors.Is(err, model.ErrRateLimited) {
		return 2
	}

	var statusErr *model.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return 2
		}
	}

	var transportErr *model.TransportError
	if errors.As(err, &transportErr) {
		return 3
	}

	return 1
}
