package controller

import (
	"net/http"

	"github.com/Scalingo/github-repo-stats/config"
	"github.com/Scalingo/github-repo-stats/model"
	"github.com/Scalingo/github-repo-stats/output"
	"github.com/Scalingo/github-repo-stats/service"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type APIController interface {
	GetRepositories(ctx *gin.Context)
}

type apiController struct {
	githubService service.GithubService
	config        config.Config
}

func NewAPIController(config config.Config, service service.GithubService) APIController {
	return apiController{
		githubService: service,
		config:        config,
	}
}

// GetRepositories streams the repositories of an organization as CSV
// errors on the first page are answered as JSON, later errors truncate the stream
func (s apiController) GetRepositories(c *gin.Context) {
	var query model.RepositoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, model.APIError{Code: "INVALID_QUERY", Message: err.Error()})
		return
	}

	org := query.Organization(s.config.Github.Org)
	includeArchived := query.Archived || s.config.Github.IncludeArchived

	log.WithFields(log.Fields{
		"org":      org,
		"archived": includeArchived,
	}).Info("list organization repositories")

	repos := s.githubService.ListOrganizationRepositories(org, includeArchived)

	// pull the first record before answering so a failing first page still gets a proper status
	hasFirst := repos.Next(c.Request.Context())
	if err := repos.Err(); err != nil {
		status, apiErr := model.NewAPIError(err)
		c.JSON(status, apiErr)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)

	writer := output.NewCSVWriter(c.Writer)

	for ok := hasFirst; ok; ok = repos.Next(c.Request.Context()) {
		if err := writer.Write(repos.Repository()); err != nil {
			log.WithError(err).Warning("client went away while streaming repositories")
			return
		}
	}

	if err := repos.Err(); err != nil {
		log.WithError(err).WithField("org", org).Error("repositories retrieval failed while streaming")
	}

	if err := writer.Close(); err != nil {
		log.WithError(err).Warning("unable to flush repositories")
	}
}
