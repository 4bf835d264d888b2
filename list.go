package main

import (
	"context"
	"io"
	"os"

	"emperror.dev/errors"
	"github.com/Scalingo/github-repo-stats/output"
	"github.com/Scalingo/github-repo-stats/service"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newListCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list [org...]",
		Short: "Print the repositories of one or more organizations as CSV",
		Long: `Print the repositories of one or more organizations as CSV on stdout.

Without arguments the organization given by --org is listed.
Several organizations are retrieved concurrently and printed in argument order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeList(cmd, *configFile, args)
		},
	}
}

func executeList(cmd *cobra.Command, configFile string, args []string) error {
	cfg, githubService, err := setup(cmd, configFile)
	if err != nil {
		return err
	}

	orgs := args
	if len(orgs) == 0 {
		orgs = []string{cfg.Github.Org}
	}

	return runList(cmd.Context(), githubService, orgs, cfg.Github.IncludeArchived, os.Stdout)
}

// runList writes the repositories of orgs as CSV to out
// a single organization is streamed record by record as pages come in
func runList(ctx context.Context, githubService service.GithubService, orgs []string, includeArchived bool, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	writer := output.NewCSVWriter(out)

	if len(orgs) == 1 {
		repos := githubService.ListOrganizationRepositories(orgs[0], includeArchived)

		for repos.Next(ctx) {
			if err := writer.Write(repos.Repository()); err != nil {
				return err
			}
		}

		if err := repos.Err(); err != nil {
			return errors.WithMessagef(err, "unable to list repositories of %s", orgs[0])
		}

		log.WithFields(log.Fields{
			"org":          orgs[0],
			"repositories": writer.Count(),
			"pages":        repos.PagesFetched(),
		}).Info("repositories listed")

		return writer.Close()
	}

	results, listErr := githubService.ListOrganizations(ctx, orgs, includeArchived)

	// records retrieved before the first failure are still written
	for _, result := range results {
		for _, repo := range result.Repositories {
			if err := writer.Write(repo); err != nil {
				return err
			}
		}

		if result.Err != nil {
			return errors.WithMessagef(result.Err, "unable to list repositories of %s", result.Org)
		}
	}

	if listErr != nil {
		return listErr
	}

	log.WithFields(log.Fields{
		"organizations": len(orgs),
		"repositories":  writer.Count(),
	}).Info("repositories listed")

	return writer.Close()
}
