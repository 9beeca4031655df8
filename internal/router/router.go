package router

import (
	"log"
	"time"

	"imagify/config"
	"imagify/internal/handler"
	"imagify/internal/middleware"
	"imagify/internal/repository"
	"imagify/internal/service"
	"imagify/pkg/cashfree"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func Setup(cfg *config.Config, db *gorm.DB) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit(middleware.NewInMemoryRateLimiter(100, 60*time.Second)))

	// Repositories
	userRepo := repository.NewUserRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	// Gateway
	gateway := cashfree.NewClient(cashfree.Config{
		AppID:      cfg.Cashfree.AppID,
		SecretKey:  cfg.Cashfree.SecretKey,
		BaseURL:    cfg.Cashfree.BaseURL,
		Production: cfg.Server.Env == "production",
		Timeout:    cfg.Cashfree.Timeout,
	})
	if gateway.IsConfigured() {
		log.Printf("[Cashfree] gateway configured")
	} else {
		log.Printf("[Cashfree] gateway not configured; purchases fall back to manual payment")
	}

	// Services
	authSvc := service.NewAuthService(cfg, userRepo)
	paymentSvc := service.NewPaymentService(cfg, paymentRepo, userRepo, gateway)

	// Handlers
	userHandler := handler.NewUserHandler(authSvc, userRepo)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	webhookHandler := handler.NewPaymentWebhookHandler(paymentSvc)

	authMw := middleware.AuthRequired(&cfg.JWT)

	api := r.Group("/api")
	{
		user := api.Group("/user")
		{
			user.POST("/register", userHandler.Register)
			user.POST("/login", userHandler.Login)
			user.GET("/credits", authMw, userHandler.Credits)
		}
		payment := api.Group("/payment")
		{
			payment.POST("/pay", authMw, paymentHandler.Pay)
			payment.POST("/status", authMw, paymentHandler.Status)
			payment.POST("/verify-manual", authMw, paymentHandler.VerifyManual)
			payment.POST("/webhook", webhookHandler.Handle)
		}
	}

	return r
}
