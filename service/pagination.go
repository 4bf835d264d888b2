package service

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/tomnomnom/linkheader"
)

// NextPage returns the page number referenced by the rel="next" entry of the link header
//
// A missing header, a missing next relation or a next link without a valid page
// all mean there is no further page. A malformed cursor ends the pagination
// instead of failing the retrieval.
func NextPage(headers http.Header) (int, bool) {
	raw := headers.Get("Link")
	if raw == "" {
		return 0, false
	}

	for _, link := range linkheader.Parse(raw).FilterByRel("next") {
		next, err := url.Parse(link.URL)
		if err != nil {
			return 0, false
		}

		page, err := strconv.Atoi(next.Query().Get("page"))
		if err != nil || page < 1 {
			return 0, false
		}

		return page, true
	}

	return 0, false
}
