package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/server/handlers"
)

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins []string
	PrintRateLimit string
}

// New wires the Gin engine with required routes and middlewares.
func New(bills *handlers.BillHandler, foods *handlers.FoodHandler, opts Options, logger *zap.Logger) (*gin.Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	printLimit, err := rateLimit(opts.PrintRateLimit)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))
	r.Use(corsMiddleware(opts.AllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/foods", foods.List)
	r.POST("/foods", handlers.RequireActor(), handlers.RequireAdmin(), foods.Create)

	b := r.Group("/bills")
	b.GET("", bills.List)
	b.GET("/:id", bills.Get)
	b.GET("/:id/history", bills.History)
	b.GET("/:id/gate", bills.Gate)
	b.GET("/:id/events", bills.Events)
	b.GET("/:id/print/:channel", bills.PrintStatus)

	mutations := b.Group("", handlers.RequireActor())
	mutations.POST("", bills.Create)
	mutations.PUT("/:id", bills.Update)
	mutations.POST("/:id/print/:channel", printLimit, bills.Print)

	logger.Info("router initialized")
	return r, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Content-Type", "Origin", "X-Actor", "X-Role"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"http://localhost:3000"}
	}
	return cors.New(cfg)
}

// rateLimit limits requests per client IP with an in-memory store.
func rateLimit(formatted string) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("parse rate limit %q: %w", formatted, err)
	}

	instance := limiter.New(memory.NewStore(), rate)
	middleware := stdlib.NewMiddleware(instance)

	return func(c *gin.Context) {
		middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)

		if c.Writer.Status() == http.StatusTooManyRequests {
			c.Abort()
		}
	}, nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("actor", c.GetHeader("X-Actor")))
	}
}
