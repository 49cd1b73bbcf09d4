package router

import (
	"github.com/dpo2u/lgpdkit/config"
	"github.com/dpo2u/lgpdkit/internal/handler"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

func Setup(
	cfg *config.Config,
	healthHandler *handler.HealthHandler,
	runHandler *handler.RunHandler,
	cacheHandler *handler.CacheHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
	}))
	// 压缩 JSON 响应；zip 包本身已压缩，排除下载路径
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`^/api/runs/[^/]+/package$`})))

	api := r.Group("/api")
	{
		api.GET("/health", healthHandler.Health)

		runs := api.Group("/runs")
		{
			runs.POST("", runHandler.Create)
			runs.GET("", runHandler.List)
			runs.GET("/queue", runHandler.QueueStatus)
			runs.POST("/cleanup", runHandler.CleanupStuck)
			runs.GET("/:id", runHandler.Get)
			runs.GET("/:id/package", runHandler.Package)
			runs.POST("/:id/cancel", runHandler.Cancel)
		}

		cache := api.Group("/cache")
		{
			cache.GET("", cacheHandler.List)
			cache.GET("/lookup", cacheHandler.Lookup)
		}
	}

	return r
}
