package router

import (
	"github.com/gin-gonic/gin"

	"github.com/lalalland/topcoder-x-processor/internal/http/handler/webhook"
	"github.com/lalalland/topcoder-x-processor/internal/queue"
)

type RouterConfig struct {
	GitHubSecret string
	GitLabToken  string
}

func SetupRoutes(router *gin.Engine, producer queue.Producer, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	hooks := router.Group("/webhooks")
	{
		githubHandler := webhook.NewGitHubWebhookHandler(cfg.GitHubSecret, producer)
		hooks.POST("/github", githubHandler.HandleEvent)

		gitlabHandler := webhook.NewGitLabWebhookHandler(cfg.GitLabToken, producer)
		hooks.POST("/gitlab", gitlabHandler.HandleEvent)
	}
}
