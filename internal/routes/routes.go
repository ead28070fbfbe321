package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"symptom-assistant-server/internal/advice"
	"symptom-assistant-server/internal/chat"
	"symptom-assistant-server/internal/config"
	"symptom-assistant-server/internal/ehr"
	"symptom-assistant-server/internal/handlers"
	"symptom-assistant-server/internal/middleware"
	"symptom-assistant-server/internal/models"
	"symptom-assistant-server/internal/observability"
	"symptom-assistant-server/internal/places"
	"symptom-assistant-server/internal/symptoms"
)

// Dependencies are the services the routes dispatch to.
type Dependencies struct {
	DB        *gorm.DB
	Advice    *advice.Service
	Chat      *chat.Manager
	Analytics *symptoms.Analytics
	Finder    *places.Finder
	Profiles  ehr.ProfileSource
	Patients  handlers.PatientDirectory
	Version   string
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, cfg *config.Config, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler(deps.DB, "symptom-assistant-server", deps.Version)
	authHandler := handlers.NewAuthHandler(deps.DB, cfg)
	userHandler := handlers.NewUserHandler(deps.DB)
	adviceHandler := handlers.NewAdviceHandler(deps.Advice, deps.DB)
	chatHandler := handlers.NewChatHandler(deps.Chat, deps.DB)
	analyticsHandler := handlers.NewAnalyticsHandler(deps.Analytics)
	reminderHandler := handlers.NewReminderHandler(deps.DB)
	patientHandler := handlers.NewPatientHandler(deps.Profiles, deps.Patients, deps.DB)
	providerHandler := handlers.NewProviderHandler(deps.Finder)

	clinicianOnly := middleware.RoleAuthMiddleware(models.RoleClinician, models.RoleAdmin)

	// Public routes (no authentication required)
	router.GET("/", healthHandler.Root)
	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.POST("/refresh-token", authHandler.RefreshToken)
	}

	// Authenticated routes
	private := router.Group("/")
	private.Use(middleware.AuthMiddleware(cfg))
	{
		authPrivate := private.Group("/auth")
		{
			authPrivate.POST("/logout", authHandler.Logout)
			authPrivate.GET("/profile", authHandler.GetProfile)
			authPrivate.PUT("/profile", authHandler.UpdateProfile)
		}

		userRoutes := private.Group("/users")
		userRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
		{
			userRoutes.GET("", userHandler.GetUsers)
			userRoutes.GET("/:id", userHandler.GetUserByID)
			userRoutes.PATCH("/:id", userHandler.UpdateUser)
			userRoutes.DELETE("/:id", userHandler.DeleteUser)
		}

		private.POST("/triage", adviceHandler.Triage)
		private.POST("/advice", adviceHandler.Advice)
		private.POST("/ehr-advice", adviceHandler.RecordAdvice)
		private.POST("/referrals", clinicianOnly, adviceHandler.Referral)
		private.POST("/rx_draft", clinicianOnly, adviceHandler.RxDraft)
		private.POST("/healthcare-providers", providerHandler.FindProviders)

		chatRoutes := private.Group("/chat")
		{
			chatRoutes.POST("", chatHandler.SendMessage)
			chatRoutes.POST("/:id/analyze", chatHandler.Analyze)
			chatRoutes.GET("/sessions", chatHandler.GetSessions)
			chatRoutes.GET("/sessions/:id", chatHandler.GetSession)
		}

		analyticsRoutes := private.Group("/analytics")
		{
			analyticsRoutes.GET("/symptom-intensity", analyticsHandler.Intensity)
			analyticsRoutes.GET("/symptom-frequency", analyticsHandler.Frequency)
			analyticsRoutes.GET("/symptom-summary", analyticsHandler.Summary)
			analyticsRoutes.GET("/recent-symptoms", analyticsHandler.Recent)
			analyticsRoutes.GET("/trends", analyticsHandler.Trends)
		}

		reminderRoutes := private.Group("/reminders")
		{
			reminderRoutes.POST("", reminderHandler.CreateReminder)
			reminderRoutes.GET("", reminderHandler.GetReminders)
			reminderRoutes.GET("/today", reminderHandler.GetTodayReminders)
			reminderRoutes.GET("/:id", reminderHandler.GetReminder)
			reminderRoutes.PUT("/:id", reminderHandler.UpdateReminder)
			reminderRoutes.DELETE("/:id", reminderHandler.DeleteReminder)
			reminderRoutes.PATCH("/:id/toggle", reminderHandler.ToggleReminder)
			reminderRoutes.PATCH("/:id/complete", reminderHandler.CompleteReminder)
		}

		patientRoutes := private.Group("/patient")
		{
			patientRoutes.GET("/discover", clinicianOnly, patientHandler.Discover)
			patientRoutes.GET("/profile/:patientId", patientHandler.GetProfile)
			patientRoutes.GET("/medications/:patientId", patientHandler.GetMedications)
		}
	}
}
