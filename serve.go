package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Scalingo/github-repo-stats/controller"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCommand(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the repositories listing as CSV over HTTP",
		Long: `Start an HTTP server answering GET /repos?org=<org>&archived=<bool> with the CSV listing
and exposing prometheus metrics on GET /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, githubService, err := setup(cmd, *configFile)
			if err != nil {
				return err
			}

			apiController := controller.NewAPIController(*cfg, githubService)

			gin.SetMode(gin.ReleaseMode)
			router := controller.NewRouter(apiController)

			server := &http.Server{
				Addr:    ":" + cfg.API.ListenPort,
				Handler: router,
			}

			// start with configuration
			errCh := make(chan error, 1)
			go func() {
				log.Info("server listening on port " + cfg.API.ListenPort)

				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// wait for interrupt signal to gracefully shut down the server with a timeout of 15 seconds.
			// kill default send syscall.SIGTERM
			// kill -2 is syscall.SIGINT
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				log.WithError(err).Error("error while starting server")
				return err
			case <-quit:
			}

			log.Info("SIGINT, SIGTERM received, will shut down server ...")

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if err := server.Shutdown(ctx); err != nil {
				log.WithError(err).Error("Server forced to shutdown")
				return err
			}

			log.Info("Application stopped gracefully !")
			return nil
		},
	}

	cmd.Flags().String("port", "", "Listen port (default: 5000)")

	return cmd
}
