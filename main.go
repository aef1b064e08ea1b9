package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/didip/tollbooth_gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/br-cmd/MerNproject/docs"
	"github.com/br-cmd/MerNproject/internal/authentication"
	"github.com/br-cmd/MerNproject/internal/user"
	"github.com/br-cmd/MerNproject/internal/utils"
)

// @title           Job Portal Authentication API
// @version         1.0
// @description     Registration, login, refresh token rotation and current user lookup for the job portal.
//
// @host      localhost:8080
// @BasePath  /api/v1
//
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	// load config
	cfg, err := utils.LoadConfig(".env")
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		panic("Invalid configuration: " + err.Error())
	}

	// init logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	// init stores
	userRepo, recordRepo, closeStores, err := initStores(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize stores", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer closeStores()

	//
	// WIRE UP SERVICES
	//
	issuer, err := authentication.NewTokenIssuer(
		cfg.Token.AccessTokenSecret, cfg.Token.AccessTokenExpiry,
		cfg.Token.RefreshTokenSecret, cfg.Token.RefreshTokenExpiry,
	)
	if err != nil {
		logger.Fatal("failed to create token issuer", zap.Error(err))
	}
	userService := user.NewUserService(userRepo, logger)
	authService := authentication.NewAuthenticationService(userService, recordRepo, issuer, logger)

	// init Gin router
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	//
	// SWAGGER (protected by Basic Auth, not JWT)
	//
	if cfg.Admin.Username != "" {
		swaggerGroup := router.Group("/swagger", gin.BasicAuth(gin.Accounts{
			cfg.Admin.Username: cfg.Admin.Password,
		}))
		swaggerGroup.GET("", ginSwagger.WrapHandler(swaggerFiles.Handler))
		swaggerGroup.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := router.Group("/api/v1")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	lmt := tollbooth.NewLimiter(cfg.Server.RateLimit, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
	lmt.SetMessageContentType("application/json; charset=utf-8")
	lmt.SetMessage(`{"success":false,"message":"Too many requests, please try again later."}`)
	authGroup := api.Group("/auth", tollbooth_gin.LimitHandler(lmt))
	authentication.NewAuthHandler(authGroup, authService, authentication.CookieSettings{Secure: cfg.Cookie.Secure}, logger)

	userGroup := api.Group("/user", authentication.AuthMiddleware(authService, logger))
	user.NewUserHandler(userGroup, logger)

	//
	// START SERVER
	//
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting HTTP server", zap.String("addr", addr), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("server stopped gracefully")
	}
}

// initStores picks the user and refresh token stores for cfg.Store.Driver.
// Users live in Postgres unless the memory driver is chosen; the redis driver
// only moves refresh tokens to redis.
func initStores(ctx context.Context, cfg *utils.Config, logger *zap.Logger) (user.UserRepository, authentication.RecordRepository, func(), error) {
	if cfg.Store.Driver == utils.StoreDriverMemory {
		logger.Warn("using in-memory stores, data is lost on restart")
		return user.NewMemoryRepository(), authentication.NewMemoryRecordRepository(), func() {}, nil
	}

	db, err := utils.InitDatabase(cfg.Database.DSN())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.AutoMigrate(&user.User{}, &authentication.RefreshTokenRecord{}); err != nil {
		return nil, nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	userRepo := user.NewUserRepository(db)

	if cfg.Store.Driver != utils.StoreDriverRedis {
		return userRepo, authentication.NewRecordRepository(db), func() {}, nil
	}

	client, err := utils.InitRedis(ctx, cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB)
	if err != nil {
		return nil, nil, nil, err
	}
	closeRedis := func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	return userRepo, authentication.NewRedisRecordRepository(client, ""), closeRedis, nil
}
