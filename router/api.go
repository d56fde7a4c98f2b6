package router

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/n8nhost/console/handlers"
	"github.com/n8nhost/console/internal/config"
	"github.com/n8nhost/console/internal/logging"
	"github.com/n8nhost/console/internal/realtime"
	"github.com/n8nhost/console/providers"
	"github.com/n8nhost/console/services"
)

func NewGinRouter(pg *sql.DB, redis *redis.Client, logger *logging.Logger, dispatcher *services.Dispatcher, hub *realtime.Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.RequestLogger(logger))

	// Add CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Initialize services
	authService := services.NewAuthService(config.App.AdminUser, config.App.AdminPasswordHash, config.App.JWTSecret)
	topicService := services.NewTopicService(pg)
	templateService := services.NewTemplateService(pg)
	savedMessageService := services.NewSavedMessageService(pg)
	settingsService := services.NewServerSettingsService(pg, config.App.Ntfy.URL, config.App.Ntfy.Token)
	ntfyClient := providers.NewNtfyClient(config.App.Ntfy.URL, config.App.Ntfy.Token)
	messageService := services.NewMessageService(pg, settingsService, topicService, ntfyClient, logger)
	cacheService := services.NewCacheService(redis)

	backupService := services.NewBackupService(pg, config.App.Backup.DataDir, config.App.Backup.Dir, logger)
	backupService.Events = dispatcher

	schema, err := services.LoadEnvSchema(config.App.EnvSchemaFile)
	if err != nil {
		logger.Warnf("Env schema not loaded, every variable will show as custom: %v", err)
	}
	var docker services.ContainerRestarter
	if client, err := services.NewDockerClient(config.App.DockerHost); err != nil {
		logger.Warnf("Docker client disabled: %v", err)
	} else {
		docker = client
	}
	envService := services.NewEnvConfigService(config.App.EnvFile, config.App.EnvBackupDir, schema, docker)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, config.App.Debug)
	ntfyHandler := handlers.NewNtfyHandler(topicService, templateService, savedMessageService, messageService, settingsService)
	channelHandler := handlers.NewChannelHandler(dispatcher.Channels, dispatcher.Sender)
	systemHandler := handlers.NewSystemNotificationHandler(dispatcher.Notifications, dispatcher)
	envHandler := handlers.NewEnvConfigHandler(envService)
	backupHandler := handlers.NewBackupHandler(backupService)
	cacheHandler := handlers.NewCacheHandler(cacheService)

	// PUBLIC ENDPOINTS

	r.GET("/health", func(c *gin.Context) {
		status := "ok"
		if err := pg.PingContext(c.Request.Context()); err != nil {
			status = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{"status": status})
	})
	r.POST("/auth/login", authHandler.Login)

	// PROTECTED ENDPOINTS

	protected := r.Group("/")
	protected.Use(handlers.AuthMiddleware(authService))
	{
		protected.GET("/auth/me", authHandler.Me)

		// authenticated with ?token= (see AuthMiddleware)
		protected.GET("/ws/notifications", hub.Handle)

		ntfy := protected.Group("/notifications/ntfy")
		{
			ntfy.GET("/topics", ntfyHandler.ListTopics)
			ntfy.POST("/topics", ntfyHandler.CreateTopic)
			ntfy.GET("/topics/:id", ntfyHandler.GetTopic)
			ntfy.PUT("/topics/:id", ntfyHandler.UpdateTopic)
			ntfy.DELETE("/topics/:id", ntfyHandler.DeleteTopic)

			ntfy.GET("/templates", ntfyHandler.ListTemplates)
			ntfy.POST("/templates", ntfyHandler.CreateTemplate)
			ntfy.GET("/templates/:id", ntfyHandler.GetTemplate)
			ntfy.PUT("/templates/:id", ntfyHandler.UpdateTemplate)
			ntfy.DELETE("/templates/:id", ntfyHandler.DeleteTemplate)
			ntfy.POST("/templates/:id/render", ntfyHandler.RenderTemplate)

			ntfy.GET("/saved-messages", ntfyHandler.ListSavedMessages)
			ntfy.POST("/saved-messages", ntfyHandler.CreateSavedMessage)
			ntfy.GET("/saved-messages/:id", ntfyHandler.GetSavedMessage)
			ntfy.PUT("/saved-messages/:id", ntfyHandler.UpdateSavedMessage)
			ntfy.DELETE("/saved-messages/:id", ntfyHandler.DeleteSavedMessage)
			ntfy.POST("/saved-messages/:id/send", ntfyHandler.SendSavedMessage)

			ntfy.POST("/messages", ntfyHandler.SendMessage)
			ntfy.GET("/history", ntfyHandler.History)

			ntfy.GET("/server", ntfyHandler.GetServer)
			ntfy.PUT("/server", ntfyHandler.UpdateServer)
			ntfy.POST("/server/test", ntfyHandler.TestServer)
		}

		notifications := protected.Group("/notifications")
		{
			notifications.GET("/services", channelHandler.ListChannels)
			notifications.POST("/services", channelHandler.CreateChannel)
			notifications.GET("/services/:id", channelHandler.GetChannel)
			notifications.PUT("/services/:id", channelHandler.UpdateChannel)
			notifications.DELETE("/services/:id", channelHandler.DeleteChannel)
			notifications.POST("/services/:id/test", channelHandler.TestChannel)

			notifications.GET("/groups", channelHandler.ListGroups)
			notifications.POST("/groups", channelHandler.CreateGroup)
			notifications.GET("/groups/:id", channelHandler.GetGroup)
			notifications.PUT("/groups/:id", channelHandler.UpdateGroup)
			notifications.DELETE("/groups/:id", channelHandler.DeleteGroup)
		}

		system := protected.Group("/system-notifications")
		{
			system.GET("/events", systemHandler.ListEvents)
			system.GET("/events/:id", systemHandler.GetEvent)
			system.PUT("/events/:id", systemHandler.UpdateEvent)
			system.POST("/events/:id/targets", systemHandler.AddTarget)
			system.DELETE("/events/:id/targets/:target_id", systemHandler.RemoveTarget)
			system.GET("/events/:id/available-targets", systemHandler.AvailableTargets)

			system.GET("/global-settings", systemHandler.GetGlobalSettings)
			system.PUT("/global-settings", systemHandler.UpdateGlobalSettings)

			system.GET("/container-configs", systemHandler.ListContainerConfigs)
			system.PUT("/container-configs/:name", systemHandler.UpdateContainerConfig)

			system.GET("/history", systemHandler.History)
			system.POST("/history/:id/acknowledge", systemHandler.Acknowledge)

			system.POST("/test-event", systemHandler.TestEvent)
		}

		env := protected.Group("/env-config")
		{
			env.GET("", envHandler.GetConfig)
			env.POST("", envHandler.AddCustom)
			env.POST("/acknowledge-risk", envHandler.AcknowledgeRisk)
			env.PUT("/:key", envHandler.SetValue)
			env.DELETE("/:key", envHandler.DeleteCustom)
			env.GET("/backups", envHandler.ListBackups)
			env.POST("/backup", envHandler.CreateBackup)
			env.POST("/restore", envHandler.Restore)
			env.POST("/health-check", envHandler.HealthCheck)
			env.GET("/affected-containers/:key", envHandler.AffectedContainers)
			env.POST("/restart-containers", envHandler.RestartContainers)
		}

		backups := protected.Group("/backups")
		{
			backups.GET("", backupHandler.ListBackups)
			backups.POST("", backupHandler.CreateBackup)
			backups.GET("/:id", backupHandler.GetBackup)
			backups.POST("/:id/verify", backupHandler.VerifyBackup)
			backups.GET("/download/:id", backupHandler.DownloadBackup)
			backups.DELETE("/:id", backupHandler.DeleteBackup)
		}

		cache := protected.Group("/cache")
		{
			cache.GET("/status", cacheHandler.Status)
			cache.GET("/keys", cacheHandler.ListKeys)
			cache.GET("/keys/*key", cacheHandler.GetKey)
			cache.DELETE("/keys/*key", cacheHandler.DeleteKey)
			cache.POST("/flush", cacheHandler.Flush)
		}
	}

	return r
}
