package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PagesFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "github_repo_stats_pages_fetched_total",
		Help: "Repository listing pages fetched from github",
	})
	RepositoriesEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "github_repo_stats_repositories_emitted_total",
		Help: "Repositories emitted after the archived filter",
	})
	RepositoriesFiltered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "github_repo_stats_repositories_filtered_total",
		Help: "Archived repositories skipped",
	})
	FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "github_repo_stats_page_fetch_duration_seconds",
		Help: "Duration of one page fetch",
	})
	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "github_repo_stats_errors_total",
		Help: "Fatal retrieval errors by kind",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		PagesFetched,
		RepositoriesEmitted,
		RepositoriesFiltered,
		FetchDuration,
		ErrorsTotal,
	)
}

// Handler exposes the registered collectors
func Handler() http.Handler {
	return promhttp.Handler()
}
