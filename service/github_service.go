package service

import (
	"context"
	"time"

	"github.com/Scalingo/github-repo-stats/config"
	"github.com/Scalingo/github-repo-stats/model"
	"github.com/google/go-github/v66/github"
	"github.com/remeh/sizedwaitgroup"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type GithubService interface {
	ListOrganizationRepositories(org string, includeArchived bool) *RepositoryIterator
	ListOrganizations(ctx context.Context, orgs []string, includeArchived bool) ([]OrganizationRepositories, error)
}

// OrganizationRepositories is the complete listing of one organization
type OrganizationRepositories struct {
	Org          string
	Repositories []model.Repository
	Err          error
}

type githubService struct {
	githubClient      *github.Client
	githubRateLimiter *rate.Limiter
	config            config.Config
}

// NewGithubService returns the service listing organization repositories
// the rate limiter is shared by every iterator created by the service, nil disables it
func NewGithubService(config config.Config, githubClient *github.Client, rateLimiter *rate.Limiter) GithubService {
	return githubService{
		githubClient:      githubClient,
		githubRateLimiter: rateLimiter,
		config:            config,
	}
}

// NewRateLimiter spreads the hourly github quota evenly, the whole quota being available as burst
// it returns nil when requestsPerHour is not positive
func NewRateLimiter(requestsPerHour int) *rate.Limiter {
	if requestsPerHour <= 0 {
		return nil
	}

	return rate.NewLimiter(rate.Every(time.Hour/time.Duration(requestsPerHour)), requestsPerHour)
}

// ListOrganizationRepositories returns a lazy iterator over the repositories of org
// no request is made before the first call to Next
func (s githubService) ListOrganizationRepositories(org string, includeArchived bool) *RepositoryIterator {
	return newRepositoryIterator(s.githubClient, s.githubRateLimiter, org, includeArchived)
}

// ListOrganizations retrieves several organizations concurrently, each one with its own iterator
// results keep the order of orgs and the returned error is the first one in that order
func (s githubService) ListOrganizations(ctx context.Context, orgs []string, includeArchived bool) ([]OrganizationRepositories, error) {
	parallel := s.config.Tasks.MaxParallelTasksAllowed
	if parallel < 1 {
		parallel = 1
	}

	swg := sizedwaitgroup.New(parallel)
	results := make([]OrganizationRepositories, len(orgs))

	for i, org := range orgs {
		swg.Add()

		go func(i int, org string) {
			defer swg.Done()

			repos, err := s.ListOrganizationRepositories(org, includeArchived).Collect(ctx)
			results[i] = OrganizationRepositories{Org: org, Repositories: repos, Err: err}
		}(i, org)
	}

	log.WithField("organizations", len(orgs)).Debug("waiting for all organizations to be retrieved")
	swg.Wait()

	for _, r := range results {
		if r.Err != nil {
			return results, r.Err
		}
	}

	return results, nil
}
