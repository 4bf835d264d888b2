package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Scalingo/github-repo-stats/config"
	"github.com/Scalingo/github-repo-stats/metrics"
	"github.com/Scalingo/github-repo-stats/model"
	githubMock "github.com/migueleliasweb/go-github-mock/src/mock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockedPage is the answer of the mocked github for one page
type mockedPage struct {
	status int
	link   string
	body   string
}

func nextLink(page int) string {
	return `<https://api.github.com/orgs/some-org/repos?per_page=25&page=` + strconv.Itoa(page) + `>; rel="next"`
}

// pagesRecorder serves mocked pages by page number and records every request received
type pagesRecorder struct {
	t     *testing.T
	pages map[string]mockedPage

	mu       sync.Mutex
	requests []*http.Request
}

func (p *pagesRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.requests = append(p.requests, r.Clone(context.Background()))
	p.mu.Unlock()

	page, found := p.pages[r.URL.Query().Get("page")]
	if !found {
		p.t.Errorf("unexpected page requested: %s", r.URL.String())
		w.WriteHeader(http.StatusTeapot)
		return
	}

	if page.link != "" {
		w.Header().Set("Link", page.link)
	}

	w.Header().Set("Content-Type", "application/json")

	if page.status != 0 {
		w.WriteHeader(page.status)
	}

	if _, err := w.Write([]byte(page.body)); err != nil {
		p.t.Error("unable to configure mock http client")
	}
}

func (p *pagesRecorder) requestedPages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	pages := make([]string, 0, len(p.requests))
	for _, r := range p.requests {
		pages = append(pages, r.URL.Query().Get("page"))
	}

	return pages
}

func newMockedService(t *testing.T, recorder *pagesRecorder) GithubService {
	mockedHTTPClient := githubMock.NewMockedHTTPClient(
		githubMock.WithRequestMatchHandler(
			githubMock.GetOrgsReposByOrg,
			recorder,
		),
	)

	mockedGithubClient, err := NewGithubClient("some-token", "", "test", mockedHTTPClient)
	require.NoError(t, err)

	return NewGithubService(*config.GetDefault(), mockedGithubClient, nil)
}

func names(repos []model.Repository) []string {
	result := make([]string, 0, len(repos))
	for _, r := range repos {
		result = append(result, r.Name)
	}

	return result
}

// TestRepositoryIteratorSinglePage checks a listing without link header
func TestRepositoryIteratorSinglePage(t *testing.T) {
	recorder := &pagesRecorder{t: t, pages: map[string]mockedPage{
		"1": {body: `[{"name": "some-name", "topics": [], "archived": false, "size": 1}]`},
	}}

	svc := newMockedService(t, recorder)
	repos := svc.ListOrganizationRepositories("some-org", true)

	require.True(t, repos.Next(context.Background()))
	assert.Equal(t, "some-name", repos.Repository().Name)
	assert.Nil(t, repos.Repository().Language)
	assert.Empty(t, repos.Repository().Topics)

	assert.False(t, repos.Next(context.Background()))
	assert.NoError(t, repos.Err())
	assert.Equal(t, 1, repos.PagesFetched())

	// an exhausted iterator never fetches again
	assert.False(t, repos.Next(context.Background()))
	assert.Equal(t, []string{"1"}, recorder.requestedPages())
}

// TestRepositoryIteratorRequest checks the request sent to github
func TestRepositoryIteratorRequest(t *testing.T) {
	recorder := &pagesRecorder{t: t, pages: map[string]mockedPage{
		"1": {body: `[]`},
	}}

	svc := newMockedService(t, recorder)
	repos := svc.ListOrganizationRepositories("some-org", false)

	assert.False(t, repos.Next(context.Background()))
	require.NoError(t, repos.Err())
	require.Len(t, recorder.requests, 1)

	req := recorder.requests[0]
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/orgs/some-org/repos", req.URL.Path)
	assert.Equal(t, "25", req.URL.Query().Get("per_page"))
	assert.Equal(t, "1", req.URL.Query().Get("page"))
	assert.Equal(t, "application/vnd.github.mercy-preview+json", req.Header.Get("Accept"))
	assert.Equal(t, "Bearer some-token", req.Header.Get("Authorization"))
	assert.Equal(t, "github-repo-stats/test", req.Header.Get("User-Agent"))
}

// TestRepositoryIteratorPagination checks pages are fetched on demand and in order
func TestRepositoryIteratorPagination(t *testing.T) {
	recorder := &pagesRecorder{t: t, pages: map[string]mockedPage{
		"1": {
			link: nextLink(2),
			body: `[{"name": "some-name", "topics": [], "archived": false, "size": 1}]`,
		},
		"2": {
			body: `[{"name": "other-name", "topics": [], "archived": false, "size": 1}]`,
		},
	}}

	svc := newMockedService(t, recorder)
	repos := svc.ListOrganizationRepositories("some-org", true)
	ctx := context.Background()

	require.True(t, repos.Next(ctx))
	assert.Equal(t, "some-name", repos.Repository().Name)
	assert.Equal(t, []string{"1"}, recorder.requestedPages())

	require.True(t, repos.Next(ctx))
	assert.Equal(t, "other-name", repos.Repository().Name)
	assert.Equal(t, []string{"1", "2"}, recorder.requestedPages())

	assert.False(t, repos.Next(ctx))
	assert.NoError(t, repos.Err())
	assert.Equal(t, 2, repos.PagesFetched())
	assert.Equal(t, []string{"1", "2"}, recorder.requestedPages())
}

// TestRepositoryIteratorEarlyStop checks an abandoned iterator does not fetch the next page
func TestRepositoryIteratorEarlyStop(t *testing.T) {
	recorder := &pagesRecorder{t: t, pages: map[string]mockedPage{
		"1": {
			link: nextLink(2),
			body: `[{"name": "a", "topics": [], "archived": false, "size": 1},
				{"name": "b", "topics": [], "archived": false, "size": 1}]`,
		},
	}}

	svc := newMockedService(t, recorder)
	repos := svc.ListOrganizationRepositories("some-org", true)

	require.True(t, repos.Next(context.Background()))
	require.True(t, repos.Next(context.Background()))
	assert.Equal(t, "b", repos.Repository().Name)

	assert.Equal(t, []string{"1"}, recorder.requestedPages())
}

// TestRepositoryIteratorCollect checks filtering and ordering across pages
func TestRepositoryIteratorCollect(t *testing.T) {
	pages := map[string]mockedPage{
		"1": {
			link: nextLink(2),
			body: `[{"name": "r1", "topics": ["go", "cli"], "archived": false, "language": "Go", "size": 10},
				{"name": "r2", "topics": [], "archived": true, "language": null, "size": 0},
				{"name": "r3", "topics": [], "archived": false, "size": 3}]`,
		},
		"2": {
			link: nextLink(3),
			body: `[{"name": "r4", "topics": [], "archived": true, "size": 4},
				{"name": "r5", "topics": [], "archived": true, "size": 5}]`,
		},
		"3": {
			body: `[{"name": "r6", "topics": ["web"], "archived": false, "language": "Rust", "size": 6}]`,
		},
	}

	tests := []struct {
		name            string
		includeArchived bool
		expectedNames   []string
	}{
		{
			name:            "Archived repositories skipped",
			includeArchived: false,
			expectedNames:   []string{"r1", "r3", "r6"},
		},
		{
			name:            "Archived repositories included",
			includeArchived: true,
			expectedNames:   []string{"r1", "r2", "r3", "r4", "r5", "r6"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &pagesRecorder{t: t, pages: pages}
			svc := newMockedService(t, recorder)

			repos, err := svc.ListOrganizationRepositories("some-org", tt.includeArchived).Collect(context.Background())

			assert.NoError(t, err)
			assert.Equal(t, tt.expectedNames, names(repos))
			assert.Equal(t, []string{"1", "2", "3"}, recorder.requestedPages())
		})
	}
}

// TestRepositoryIteratorArchivedOnlyPage checks a page without kept records does not stop the pagination
func TestRepositoryIteratorArchivedOnlyPage(t *testing.T) {
	recorder := &pagesRecorder{t: t, pages: map[string]mockedPage{
		"1": {
			link: nextLink(2),
			body: `[{"name": "old", "topics": [], "archived": true, "size": 1}]`,
		},
		"2": {
			body: `[{"name": "other-name", "topics": [], "archived": false, "size": 1}]`,
		},
	}}

	svc := newMockedService(t, recorder)
	repos := svc.ListOrganizationRepositories("some-org", false)

	require.True(t, repos.Next(context.Background()))
	assert.Equal(t, "other-name", repos.Repository().Name)
	assert.Equal(t, []string{"1", "2"}, recorder.requestedPages())

	assert.False(t, repos.Next(context.Background()))
	assert.NoError(t, repos.Err())
}

// TestRepositoryIteratorLenientCursor checks malformed next links end the pagination without error
func TestRepositoryIteratorLenientCursor(t *testing.T) {
	tests := []struct {
		name string
		link string
	}{
		{
			name: "Non numeric page",
			link: `<https://api.github.com/orgs/some-org/repos?per_page=25&page=abc>; rel="next"`,
		},
		{
			name: "Missing page",
			link: `<https://api.github.com/orgs/some-org/repos?per_page=25>; rel="next"`,
		},
		{
			name: "Link pointing backwards",
			link: nextLink(1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &pagesRecorder{t: t, pages: map[string]mockedPage{
				"1": {
					link: tt.link,
					body: `[{"name": "some-name", "topics": [], "archived": false, "size": 1}]`,
				},
			}}

			svc := newMockedService(t, recorder)
			repos, err := svc.ListOrganizationRepositories("some-org", false).Collect(context.Background())

			assert.NoError(t, err)
			assert.Equal(t, []string{"some-name"}, names(repos))
			assert.Equal(t, []string{"1"}, recorder.requestedPages())
		})
	}
}

// TestRepositoryIteratorErrors checks fatal errors stop the iteration
func TestRepositoryIteratorErrors(t *testing.T) {
	tests := []struct {
		name               string
		pages              map[string]mockedPage
		expectedNames      []string
		expectedPages      []string
		expectedStatusCode int
		expectedBody       string
		expectDecodeError  bool
		expectRateLimited  bool
	}{
		{
			name: "Organization not found",
			pages: map[string]mockedPage{
				"1": {status: http.StatusNotFound, body: `{"message": "Not Found"}`},
			},
			expectedNames:      []string{},
			expectedPages:      []string{"1"},
			expectedStatusCode: http.StatusNotFound,
			expectedBody:       `{"message": "Not Found"}`,
		},
		{
			name: "Server error on second page",
			pages: map[string]mockedPage{
				"1": {link: nextLink(2), body: `[{"name": "some-name", "topics": [], "archived": false, "size": 1}]`},
				"2": {status: http.StatusInternalServerError, body: `boom`},
			},
			expectedNames:      []string{"some-name"},
			expectedPages:      []string{"1", "2"},
			expectedStatusCode: http.StatusInternalServerError,
			expectedBody:       `boom`,
		},
		{
			name: "Success status other than 200",
			pages: map[string]mockedPage{
				"1": {status: http.StatusCreated, body: `[]`},
			},
			expectedNames:      []string{},
			expectedPages:      []string{"1"},
			expectedStatusCode: http.StatusCreated,
			expectedBody:       `[]`,
		},
		{
			name: "Malformed JSON",
			pages: map[string]mockedPage{
				"1": {link: nextLink(2), body: `[{"name": `},
			},
			expectedNames:     []string{},
			expectedPages:     []string{"1"},
			expectDecodeError: true,
		},
		{
			name: "Missing required field",
			pages: map[string]mockedPage{
				"1": {body: `[{"name": "some-name", "topics": [], "archived": false}]`},
			},
			expectedNames:     []string{},
			expectedPages:     []string{"1"},
			expectDecodeError: true,
		},
		{
			name: "Negative size",
			pages: map[string]mockedPage{
				"1": {body: `[{"name": "some-name", "topics": [], "archived": false, "size": -1}]`},
			},
			expectedNames:     []string{},
			expectedPages:     []string{"1"},
			expectDecodeError: true,
		},
		{
			name: "Trailing data after the list",
			pages: map[string]mockedPage{
				"1": {body: `[{"name": "some-name", "topics": [], "archived": false, "size": 1}] this is not json`},
			},
			expectedNames:     []string{},
			expectedPages:     []string{"1"},
			expectDecodeError: true,
		},
		{
			name: "Not a list",
			pages: map[string]mockedPage{
				"1": {body: `{"name": "some-name"}`},
			},
			expectedNames:     []string{},
			expectedPages:     []string{"1"},
			expectDecodeError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &pagesRecorder{t: t, pages: tt.pages}
			svc := newMockedService(t, recorder)

			repos := svc.ListOrganizationRepositories("some-org", false)
			collected, err := repos.Collect(context.Background())

			require.Error(t, err)
			assert.Equal(t, tt.expectedNames, names(collected))
			assert.Equal(t, tt.expectedPages, recorder.requestedPages())

			if tt.expectDecodeError {
				var decodeErr *model.DecodeError
				assert.ErrorAs(t, err, &decodeErr)
			} else {
				var statusErr *model.StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, tt.expectedStatusCode, statusErr.StatusCode)
				assert.Equal(t, tt.expectedBody, statusErr.Body)
			}

			// the error is final
			assert.False(t, repos.Next(context.Background()))
			assert.Equal(t, tt.expectedPages, recorder.requestedPages())
		})
	}
}

// TestRepositoryIteratorRateLimited checks the github rate limit is reported as such
func TestRepositoryIteratorRateLimited(t *testing.T) {
	mockedHTTPClient := githubMock.NewMockedHTTPClient(
		githubMock.WithRequestMatchHandler(
			githubMock.GetOrgsReposByOrg,
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("X-RateLimit-Limit", "60")
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
				w.WriteHeader(http.StatusForbidden)

				_, err := w.Write([]byte(`{"message": "API rate limit exceeded"}`))
				if err != nil {
					t.Error("unable to configure mock http client")
				}
			}),
		),
	)

	mockedGithubClient, err := NewGithubClient("some-token", "", "test", mockedHTTPClient)
	require.NoError(t, err)

	svc := NewGithubService(*config.GetDefault(), mockedGithubClient, nil)
	repos := svc.ListOrganizationRepositories("some-org", false)

	assert.False(t, repos.Next(context.Background()))
	assert.ErrorIs(t, repos.Err(), model.ErrRateLimited)

	var statusErr *model.StatusError
	require.ErrorAs(t, repos.Err(), &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
}

// TestRepositoryIteratorBaseURL checks a custom github endpoint and transport failures
func TestRepositoryIteratorBaseURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/orgs/some-org/repos", r.URL.Path)
		_, _ = w.Write([]byte(`[{"name": "enterprise", "topics": [], "archived": false, "size": 2}]`))
	}))

	githubClient, err := NewGithubClient("some-token", server.URL+"/api/v3", "test", nil)
	require.NoError(t, err)

	svc := NewGithubService(*config.GetDefault(), githubClient, NewRateLimiter(3600))

	repos, err := svc.ListOrganizationRepositories("some-org", false).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"enterprise"}, names(repos))

	// once the server is gone the exchange itself fails
	server.Close()

	iterator := svc.ListOrganizationRepositories("some-org", false)
	assert.False(t, iterator.Next(context.Background()))

	var transportErr *model.TransportError
	assert.ErrorAs(t, iterator.Err(), &transportErr)
}

// TestNewGithubClient test function called NewGithubClient
func TestNewGithubClient(t *testing.T) {
	_, err := NewGithubClient("", "", "test", nil)
	assert.Error(t, err)

	client, err := NewGithubClient("some-token", "https://github.example.com/api/v3", "1.2.3", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://github.example.com/api/v3/", client.BaseURL.String())
	assert.Equal(t, "github-repo-stats/1.2.3", client.UserAgent)
}

// TestRepositoryIteratorMetrics checks the counters updated while iterating
// each counter exposes a single series whatever the organization
func TestRepositoryIteratorMetrics(t *testing.T) {
	recorder := &pagesRecorder{t: t, pages: map[string]mockedPage{
		"1": {link: nextLink(2), body: `[{"name": "first", "topics": [], "archived": true, "size": 1}]`},
		"2": {body: `[{"name": "second", "topics": [], "archived": false, "size": 1}]`},
	}}

	pages := testutil.ToFloat64(metrics.PagesFetched)
	emitted := testutil.ToFloat64(metrics.RepositoriesEmitted)
	filtered := testutil.ToFloat64(metrics.RepositoriesFiltered)

	svc := newMockedService(t, recorder)
	repos, err := svc.ListOrganizationRepositories("some-org", false).Collect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, names(repos))
	assert.Equal(t, pages+2, testutil.ToFloat64(metrics.PagesFetched))
	assert.Equal(t, emitted+1, testutil.ToFloat64(metrics.RepositoriesEmitted))
	assert.Equal(t, filtered+1, testutil.ToFloat64(metrics.RepositoriesFiltered))

	for _, name := range []string{
		"github_repo_stats_pages_fetched_total",
		"github_repo_stats_repositories_emitted_total",
		"github_repo_stats_repositories_filtered_total",
	} {
		count, err := testutil.GatherAndCount(prometheus.DefaultGatherer, name)
		require.NoError(t, err)
		assert.Equal(t, 1, count, name)
	}
}
