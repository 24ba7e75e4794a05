package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jlk1997/n-dog-b/internal/config"
	"github.com/jlk1997/n-dog-b/internal/handler"
	"github.com/jlk1997/n-dog-b/internal/messaging"
	appMiddleware "github.com/jlk1997/n-dog-b/internal/middleware"
	"github.com/jlk1997/n-dog-b/internal/repository"
	"github.com/jlk1997/n-dog-b/internal/service"
	"github.com/jlk1997/n-dog-b/migrations"
	"github.com/jlk1997/n-dog-b/pkg/logger"
	"github.com/jlk1997/n-dog-b/pkg/migration"
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск Story Service...")

	// Загружаем конфиг ДО инициализации логгера
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	// Подключение к PostgreSQL
	dbPool, err := setupDatabase(cfg)
	if err != nil {
		zapLogger.Fatal("Не удалось подключиться к БД", zap.Error(err))
	}
	defer dbPool.Close()
	zapLogger.Info("Успешное подключение к PostgreSQL")

	// Применяем миграции схемы
	migrator := migration.NewMigrator(migration.Config{
		MigrationsPath: ".",
		MigrationsFS:   migrations.FS,
	}, dbPool, zapLogger)
	if err := migrator.Up(context.Background()); err != nil {
		zapLogger.Fatal("Не удалось применить миграции", zap.Error(err))
	}

	// Подключение к Redis
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		// Кэш не критичен для старта, деградируем в чтение из БД.
		zapLogger.Warn("Redis недоступен, кэш линий отключён", zap.Error(err))
	} else {
		zapLogger.Info("Успешное подключение к Redis")
	}

	// Подключение к RabbitMQ
	rabbitConn, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
	}
	defer rabbitConn.Close()
	zapLogger.Info("Успешное подключение к RabbitMQ")

	// Инициализация зависимостей
	plotRepo := repository.NewPgPlotRepository(zapLogger)
	chapterRepo := repository.NewPgChapterRepository(zapLogger)
	eventRepo := repository.NewPgEventRepository(zapLogger)
	progressRepo := repository.NewPgProgressRepository(zapLogger)
	txManager := repository.NewPgxTxManager(dbPool, zapLogger)
	plotCache := repository.NewRedisPlotCache(redisClient, zapLogger)

	clientUpdatePublisher, err := messaging.NewRabbitMQClientUpdatePublisher(rabbitConn, cfg.ClientUpdatesQueueName, zapLogger)
	if err != nil {
		zapLogger.Fatal("Не удалось создать ClientUpdatePublisher", zap.Error(err))
	}

	adminService := service.NewStoryAdminService(dbPool, txManager, plotRepo, chapterRepo, eventRepo, progressRepo, plotCache, zapLogger)
	playerService := service.NewStoryPlayerService(dbPool, plotRepo, chapterRepo, eventRepo, progressRepo, plotCache, clientUpdatePublisher, zapLogger)
	storyHandler := handler.NewStoryHandler(playerService, adminService, zapLogger, cfg.JWTSecret, cfg.AdminAPIToken)

	// Настройка Echo
	e := echo.New()
	e.Validator = handler.NewCustomValidator()
	e.Use(appMiddleware.EchoZapLogger(zapLogger))
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Token"},
	}))

	storyHandler.RegisterRoutes(e)

	log.Printf("Story сервер слушает на порту %s", cfg.Port)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("Ошибка запуска HTTP сервера: ", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Получен сигнал завершения, начинаем graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal("Ошибка при graceful shutdown Echo: ", err)
	}

	log.Println("Story Service успешно остановлен")
}

// setupDatabase инициализирует и возвращает пул соединений с БД
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	dsn := cfg.GetDSN()
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать пул соединений: %w", err)
	}
	if err = dbPool.Ping(ctx); err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("не удалось подключиться к БД (ping failed): %w", err)
	}
	return dbPool, nil
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("Не удалось подключиться к RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, err
}
