package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"emperror.dev/errors"
	"github.com/Scalingo/github-repo-stats/metrics"
	"github.com/Scalingo/github-repo-stats/model"
	"github.com/google/go-github/v66/github"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// PerPage is the page size requested to github
	PerPage = 25

	// mediaTypeTopicsPreview is required for github to include the topics field
	mediaTypeTopicsPreview = "application/vnd.github.mercy-preview+json"

	firstPage = 1
)

// RepositoryIterator pulls the repositories of one organization page by page
//
// It holds the next page to fetch (0 once the listing is exhausted) and the records
// of the last fetched page not consumed yet. A page is only requested when Next is
// called with an empty buffer, so a caller that stops early never triggers another request.
// An iterator is single-pass and must not be shared between goroutines.
type RepositoryIterator struct {
	githubClient      *github.Client
	githubRateLimiter *rate.Limiter
	org               string
	includeArchived   bool

	cursor  int
	buffer  []model.Repository
	current model.Repository
	err     error
	pages   int
}

func newRepositoryIterator(githubClient *github.Client, rateLimiter *rate.Limiter, org string, includeArchived bool) *RepositoryIterator {
	return &RepositoryIterator{
		githubClient:      githubClient,
		githubRateLimiter: rateLimiter,
		org:               org,
		includeArchived:   includeArchived,
		cursor:            firstPage,
	}
}

// Next advances to the next repository, fetching the next page when the buffer is empty
// it returns false once the listing is exhausted or a fatal error occurred, see Err
func (it *RepositoryIterator) Next(ctx context.Context) bool {
	for len(it.buffer) == 0 {
		if it.cursor == 0 {
			return false
		}

		page := it.cursor
		repos, next, err := it.fetchPage(ctx, page)
		if err != nil {
			it.cursor = 0
			it.buffer = nil
			it.err = err
			return false
		}

		// pages are requested in strictly increasing order, a link going backwards ends the listing
		if next != 0 && next <= page {
			log.WithFields(log.Fields{
				"org":      it.org,
				"page":     page,
				"nextPage": next,
			}).Warning("next page link does not move forward. stopping pagination")

			next = 0
		}

		it.cursor = next
		it.buffer = it.filter(repos)
	}

	it.current = it.buffer[0]
	it.buffer = it.buffer[1:]
	metrics.RepositoriesEmitted.Inc()

	return true
}

// Repository returns the repository reached by the last successful call to Next
func (it *RepositoryIterator) Repository() model.Repository {
	return it.current
}

// Err returns the error that stopped the iteration, nil when the listing was exhausted normally
func (it *RepositoryIterator) Err() error {
	return it.err
}

// PagesFetched returns the number of pages requested so far
func (it *RepositoryIterator) PagesFetched() int {
	return it.pages
}

// Collect drains the iterator
// repositories emitted before a fatal error are returned along with the error
func (it *RepositoryIterator) Collect(ctx context.Context) ([]model.Repository, error) {
	repos := make([]model.Repository, 0)

	for it.Next(ctx) {
		repos = append(repos, it.Repository())
	}

	return repos, it.Err()
}

// filter drops archived repositories unless they were requested
func (it *RepositoryIterator) filter(repos []model.Repository) []model.Repository {
	kept := make([]model.Repository, 0, len(repos))

	for _, r := range repos {
		if r.Archived && !it.includeArchived {
			metrics.RepositoriesFiltered.Inc()
			continue
		}

		kept = append(kept, r)
	}

	return kept
}

// fetchPage requests a single page and returns its repositories and the next page (0 when none)
func (it *RepositoryIterator) fetchPage(ctx context.Context, page int) ([]model.Repository, int, error) {
	if it.githubRateLimiter != nil {
		if err := it.githubRateLimiter.Wait(ctx); err != nil {
			metrics.ErrorsTotal.WithLabelValues("rate_limiter").Inc()
			return nil, 0, errors.Wrap(err, "unable to wait for the local rate limiter")
		}
	}

	log.WithFields(log.Fields{
		"org":  it.org,
		"page": page,
	}).Debug("fetch repositories page from github")

	u := fmt.Sprintf("orgs/%s/repos?per_page=%d&page=%d", url.PathEscape(it.org), PerPage, page)

	req, err := it.githubClient.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, "unable to build repositories request")
	}

	req.Header.Set("Accept", mediaTypeTopicsPreview)

	start := time.Now()
	resp, err := it.githubClient.BareDo(ctx, req)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	it.pages++

	if resp != nil && resp.Response != nil {
		defer resp.Body.Close()
	}

	if err != nil || resp.StatusCode != http.StatusOK {
		return nil, 0, HandleRequestErrors(page, resp, err)
	}

	metrics.PagesFetched.Inc()

	repos, err := decodeRepositories(resp.Body)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("decode").Inc()
		return nil, 0, &model.DecodeError{Page: page, Err: err}
	}

	next, _ := NextPage(resp.Header)

	log.WithFields(log.Fields{
		"org":      it.org,
		"page":     page,
		"records":  len(repos),
		"nextPage": next,
	}).Debug("repositories page fetched")

	return repos, next, nil
}

// githubRepository is the wire shape of one listing element
// pointers detect missing fields, only language may be absent
type githubRepository struct {
	Name     *string   `json:"name"`
	Topics   *[]string `json:"topics"`
	Archived *bool     `json:"archived"`
	Language *string   `json:"language"`
	Size     *uint32   `json:"size"`
}

func decodeRepositories(body io.Reader) ([]model.Repository, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	// the whole body must be a single JSON list, trailing data included
	var raw []githubRepository
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	repos := make([]model.Repository, 0, len(raw))

	for i, r := range raw {
		switch {
		case r.Name == nil || *r.Name == "":
			return nil, fmt.Errorf("repository %d: missing name", i)
		case r.Topics == nil:
			return nil, fmt.Errorf("repository %q: missing topics", *r.Name)
		case r.Archived == nil:
			return nil, fmt.Errorf("repository %q: missing archived", *r.Name)
		case r.Size == nil:
			return nil, fmt.Errorf("repository %q: missing size", *r.Name)
		}

		repos = append(repos, model.Repository{
			Name:     *r.Name,
			Topics:   *r.Topics,
			Archived: *r.Archived,
			Language: r.Language,
			Size:     *r.Size,
		})
	}

	return repos, nil
}

// HandleRequestErrors turns a failed page fetch into the matching retrieval error
// a response that is not exactly 200 is a StatusError, rate limit statuses wrap model.ErrRateLimited
func HandleRequestErrors(page int, resp *github.Response, err error) error {
	if resp == nil || resp.Response == nil {
		metrics.ErrorsTotal.WithLabelValues("transport").Inc()
		log.WithError(err).WithField("page", page).Error("error catched when fetching data from github")

		return &model.TransportError{Page: page, Err: err}
	}

	statusErr := &model.StatusError{StatusCode: resp.StatusCode}

	var acceptedErr *github.AcceptedError
	if errors.As(err, &acceptedErr) {
		statusErr.Body = string(acceptedErr.Raw)
	} else if body, readErr := io.ReadAll(resp.Body); readErr == nil {
		statusErr.Body = string(body)
	}

	var rateLimitErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateLimitErr) || errors.As(err, &abuseErr) {
		statusErr.Err = model.ErrRateLimited
		metrics.ErrorsTotal.WithLabelValues("rate_limit").Inc()
		log.WithField("page", page).Warning("the Github rate limit has been reached. Use a token or wait until the limit reset")

		return statusErr
	}

	metrics.ErrorsTotal.WithLabelValues("status").Inc()
	log.WithFields(log.Fields{
		"page":       page,
		"statusCode": resp.StatusCode,
	}).Error("github answered with an unexpected status")

	return statusErr
}
