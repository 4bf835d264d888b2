package model

import "strings"

// RepositoryQuery is bound from the query string of GET /repos
type RepositoryQuery struct {
	Org      string `form:"org"`
	Archived bool   `form:"archived"`
}

// Organization returns the requested organization, falling back to the configured one
func (params RepositoryQuery) Organization(defaultOrg string) string {
	if org := strings.TrimSpace(params.Org); org != "" {
		return org
	}

	return defaultOrg
}
