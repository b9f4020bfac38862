package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/internal/handlers"
)

type RouterConfig struct {
	AllowOrigins     []string
	CourseGenHandler *handlers.CourseGenHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-User-ID"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	api.Use(requireUser())
	{
		api.POST("/courses/:id/generate", cfg.CourseGenHandler.Generate)
		api.POST("/courses/:id/regenerate", cfg.CourseGenHandler.Regenerate)
		api.POST("/courses/:id/analyze", cfg.CourseGenHandler.Analyze)
		api.GET("/courses/:id/generation/result", cfg.CourseGenHandler.GetResult)
		api.GET("/generation-jobs/:id", cfg.CourseGenHandler.GetJob)
	}

	return router
}

// requireUser resolves the calling user from the X-User-ID header set by the
// edge proxy after authentication. The API itself does not verify tokens.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader("X-User-ID"))
		if err != nil || id == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid user"})
			return
		}
		c.Set("user_id", id)
		c.Next()
	}
}
