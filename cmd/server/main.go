package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/ridelink/rideshare-backend/internal/config"
	"github.com/ridelink/rideshare-backend/internal/database"
	"github.com/ridelink/rideshare-backend/internal/handlers"
	"github.com/ridelink/rideshare-backend/internal/middleware"
	"github.com/ridelink/rideshare-backend/internal/services"
	"github.com/ridelink/rideshare-backend/pkg/jwt"
	"github.com/ridelink/rideshare-backend/pkg/mapping"
	"github.com/ridelink/rideshare-backend/pkg/rating"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting RideLink Rideshare Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	// Repositories
	routeRepo := database.NewRouteRepository(db)
	stopRepo := database.NewStopPointRepository(db)
	tripRepo := database.NewTripRepository(db)
	requestRepo := database.NewTripRequestRepository(db)

	// External collaborators
	var mapper mapping.Provider
	if cfg.Mapping.BaseURL != "" {
		logger.Info("Using HTTP mapping provider for route estimates")
		mapper = mapping.NewHTTPProvider(cfg.Mapping.BaseURL, cfg.Mapping.APIKey, cfg.Mapping.Timeout)
	} else {
		logger.Info("No mapping provider configured, using straight-line estimates")
		mapper = mapping.NewStraightLineProvider()
	}

	var ratings services.RatingProvider
	if cfg.Rating.BaseURL != "" {
		logger.Info("Driver rating enrichment enabled")
		ratings = rating.NewClient(cfg.Rating.BaseURL, cfg.Rating.APIKey, cfg.Rating.Timeout)
	}

	// Services
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.RefreshSecret)
	routeService := services.NewRouteService(routeRepo, stopRepo, mapper, cfg.Geo, logger)
	tripService := services.NewTripService(tripRepo, routeRepo, cfg.Geo, cfg.Booking, ratings, logger)
	capacityService := services.NewCapacityService(db, requestRepo, cfg.Booking.ReserveRetries, logger)
	requestService := services.NewRequestService(requestRepo, tripRepo, stopRepo, capacityService, cfg.Booking, logger)
	logger.Info("Services initialized")

	// Handlers
	routeHandler := handlers.NewRouteHandler(routeService)
	tripHandler := handlers.NewTripHandler(tripService)
	requestHandler := handlers.NewRequestHandler(requestService)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthCheckHandler(db))

	v1 := router.Group("/api/v1")
	{
		// Route catalog. Reads are public so passengers can browse
		// without an account.
		routes := v1.Group("/routes")
		{
			routes.GET("/nearby", routeHandler.FindNearby)
			routes.GET("/search", routeHandler.SearchRoutes)
			routes.GET("/:id", routeHandler.GetRoute)
			routes.GET("/:id/stops", routeHandler.GetStopPoints)

			routesProtected := routes.Group("")
			routesProtected.Use(middleware.AuthMiddleware(jwtService))
			{
				routesProtected.POST("", routeHandler.CreateRoute)
				routesProtected.GET("/mine", routeHandler.GetMyRoutes)
				routesProtected.PATCH("/:id", routeHandler.UpdateRoute)
				routesProtected.DELETE("/:id", routeHandler.DeleteRoute)
				routesProtected.POST("/:id/stops", routeHandler.AddStopPoint)
			}
		}

		stops := v1.Group("/stops")
		stops.Use(middleware.AuthMiddleware(jwtService))
		{
			stops.DELETE("/:id", routeHandler.RemoveStopPoint)
		}

		// Trips. Search and availability are public.
		trips := v1.Group("/trips")
		{
			trips.GET("/search", tripHandler.SearchTrips)
			trips.GET("/:id", tripHandler.GetTrip)
			trips.GET("/:id/availability", tripHandler.GetTripAvailability)

			tripsProtected := trips.Group("")
			tripsProtected.Use(middleware.AuthMiddleware(jwtService))
			{
				tripsProtected.POST("", tripHandler.CreateTrip)
				tripsProtected.GET("/mine", tripHandler.GetMyTrips)
				tripsProtected.PATCH("/:id", tripHandler.UpdateTrip)
				tripsProtected.POST("/:id/start", tripHandler.StartTrip)
				tripsProtected.POST("/:id/complete", tripHandler.CompleteTrip)
				tripsProtected.POST("/:id/cancel", tripHandler.CancelTrip)
				tripsProtected.GET("/:id/requests", requestHandler.GetTripRequests)
				tripsProtected.GET("/:id/requests/stats", requestHandler.GetTripRequestStats)
			}
		}

		// Trip requests (all protected)
		requests := v1.Group("/requests")
		requests.Use(middleware.AuthMiddleware(jwtService))
		{
			requests.POST("", requestHandler.CreateRequest)
			requests.GET("/mine", requestHandler.GetMyRequests)
			requests.GET("/:id", requestHandler.GetRequest)
			requests.POST("/:id/approve", requestHandler.ApproveRequest)
			requests.POST("/:id/reject", requestHandler.RejectRequest)
			requests.POST("/:id/cancel", requestHandler.CancelRequest)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
