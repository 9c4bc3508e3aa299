package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"sumup_pos_app/internal/handlers"
	appMiddleware "sumup_pos_app/internal/middleware"
	"sumup_pos_app/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Initialize Database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Initialize Redis (optional; the debug event stream needs it)
	var cache *services.RedisCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err = services.NewRedisCache(redisURL)
		if err != nil {
			log.Printf("Warning: Redis initialization failed: %v", err)
			cache = nil
		}
	} else {
		log.Println("Warning: REDIS_URL not set, debug event streaming disabled")
	}

	// Initialize services
	sumupClient := services.NewSumUpService()
	debugSink := services.NewDebugSink(db, cache)
	refundGate := services.NewRefundGate(db, sumupClient, debugSink)
	orchestrator := services.NewPaymentOrchestrator(db, sumupClient, refundGate, nil)
	terminalService := services.NewTerminalService(db, sumupClient)
	settingsService := services.NewSettingsService(db, cache, sumupClient)

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = appMiddleware.CustomErrorHandler

	// Initialize handlers
	invoiceHandler := handlers.NewInvoiceHandler(db, orchestrator, refundGate)
	terminalHandler := handlers.NewTerminalHandler(terminalService)
	settingsHandler := handlers.NewSettingsHandler(db, settingsService)
	debugHandler := handlers.NewDebugHandler(cache, debugSink)

	// Protected routes
	api := e.Group("/api")
	api.Use(appMiddleware.RequireAPIKey(os.Getenv("API_KEY")))

	// Invoice routes
	api.GET("/invoices/:id", invoiceHandler.Get)
	api.POST("/invoices/:id/submit", invoiceHandler.Submit)
	api.POST("/invoices/:id/payment/start", invoiceHandler.StartPayment)
	api.GET("/invoices/:id/payment/status", invoiceHandler.PaymentStatus)
	api.POST("/invoices/:id/payment/cancel", invoiceHandler.CancelPayment)
	api.GET("/invoices/:id/refund/preview", invoiceHandler.RefundPreview)
	api.POST("/invoices/:id/refund/retry", invoiceHandler.RetryRefund)

	// Terminal routes
	api.GET("/terminals", terminalHandler.List)
	api.POST("/terminals/pair", terminalHandler.Pair)
	api.POST("/terminals/refresh", terminalHandler.Refresh)
	api.DELETE("/terminals/:id", terminalHandler.Remove)
	api.DELETE("/terminals/:id/force", terminalHandler.ForceRemove)
	api.POST("/terminals/remove", terminalHandler.RemoveMany)
	api.POST("/terminals/force-remove", terminalHandler.ForceRemoveMany)
	api.POST("/terminals/recover", terminalHandler.Recover)

	// Settings routes
	api.GET("/settings", settingsHandler.Get)
	api.PUT("/settings", settingsHandler.Update)
	api.POST("/settings/test-connection", settingsHandler.TestConnection)

	// Debug event stream
	api.GET("/debug/events", debugHandler.Events)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	e.Logger.Fatal(e.Start(":" + port))
}
