package service

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"emperror.dev/errors"
	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

// AppName identifies the tool in the User-Agent header, github rejects anonymous agents
const AppName = "github-repo-stats"

// UserAgent returns the version stamped user agent sent with every request
func UserAgent(version string) string {
	return AppName + "/" + version
}

// NewGithubClient returns a go-github client authenticated with the bearer token
// httpClient is used as the underlying transport when not nil, which lets tests plug a mocked client
func NewGithubClient(token, baseURL, version string, httpClient *http.Client) (*github.Client, error) {
	if token == "" {
		return nil, errors.New("github token is required")
	}

	ctx := context.Background()
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token, TokenType: "Bearer"},
	)

	client := github.NewClient(oauth2.NewClient(ctx, ts))
	client.UserAgent = UserAgent(version)

	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}

		parsed, err := url.Parse(baseURL)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid github base url %q", baseURL)
		}

		client.BaseURL = parsed
	}

	return client, nil
}
