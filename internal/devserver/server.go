// Package devserver is a local reference backend for the model console. It
// serves every endpoint the console consumes over gorm storage and simulates
// training synchronously.
package devserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/modelyard/internal/logging"
	"github.com/zulandar/modelyard/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the dev backend.
type StartOpts struct {
	DB           *gorm.DB
	Port         int
	ArtifactsDir string
	Out          io.Writer
	Logger       *zap.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("devserver: db is required")
	}
	if opts.ArtifactsDir == "" {
		opts.ArtifactsDir = "artifacts"
	}
	log := logging.OrNop(opts.Logger).With(zap.String("component", "devserver"))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	h := NewHandler(NewStore(opts.DB), NewTrainer(opts.ArtifactsDir), log)
	registerRoutes(router, h)
	return router, nil
}

// registerRoutes sets up all backend routes on the Gin router.
func registerRoutes(router *gin.Engine, h *Handler) {
	router.POST("/huggingface/login", h.Login)

	router.GET("/data-entries", h.ListDataset)
	router.POST("/add-data/:kind", h.AddDataset)
	router.POST("/update-data/:kind", h.UpdateDataset)
	router.POST("/delete-data/:kind", h.DeleteDataset)
	for _, kind := range models.TaskKinds() {
		router.POST(kind.UploadPath(), h.Upload(kind))
	}

	router.POST("/start_training_test", h.StartTraining)
	router.POST("/run_inference", h.RunInference)

	api := router.Group("/api/models")
	api.GET("", h.ListModels)
	api.POST("/activate", h.ActivateModel)
	api.POST("/delete", h.DeleteModel)
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

// Start launches the dev backend. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}
	if opts.Port <= 0 {
		opts.Port = 8000
	}

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dev backend running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("devserver: %w", err)
	}
	return nil
}
