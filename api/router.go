package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/HyIsNoob/khytool/api/handlers"
	"github.com/HyIsNoob/khytool/api/middleware"
	"github.com/HyIsNoob/khytool/internal/app"
	"github.com/HyIsNoob/khytool/internal/extractor"
	"github.com/HyIsNoob/khytool/internal/registry"
)

// SetupRouter wires the HTTP API
func SetupRouter(
	queueMgr *app.QueueManager,
	normalizer *extractor.Normalizer,
	extractors *extractor.Registry,
	reg *registry.Registry,
	logger *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS())

	healthHandler := handlers.NewHealthHandler(queueMgr)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		downloadHandler := handlers.NewDownloadHandler(queueMgr, logger)
		downloads := v1.Group("/downloads")
		{
			downloads.POST("", downloadHandler.AddDownload)
			downloads.GET("", downloadHandler.ListDownloads)
			downloads.GET("/stats", downloadHandler.GetStats)
			downloads.GET("/:id", downloadHandler.GetDownload)
			downloads.POST("/:id/cancel", downloadHandler.CancelDownload)
			downloads.POST("/:id/retry", downloadHandler.RetryDownload)
			downloads.DELETE("/:id", downloadHandler.DeleteDownload)
		}

		extractHandler := handlers.NewExtractHandler(normalizer, extractors, logger)
		v1.POST("/extract", extractHandler.Extract)

		registryHandler := handlers.NewRegistryHandler(reg, logger)
		records := v1.Group("/registry")
		{
			records.GET("", registryHandler.ListRecords)
			records.GET("/:id", registryHandler.GetRecord)
			records.DELETE("/:id", registryHandler.DeleteRecord)
		}
	}

	return router
}
