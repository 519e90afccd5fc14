// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"textlens-go/internal/config"
	"textlens-go/internal/handler"
	"textlens-go/internal/middleware"
	"textlens-go/internal/pipeline"
	"textlens-go/internal/repository"
	"textlens-go/internal/service"
	"textlens-go/pkg/database"
	"textlens-go/pkg/embedding"
	"textlens-go/pkg/es"
	"textlens-go/pkg/kafka"
	"textlens-go/pkg/llm"
	"textlens-go/pkg/log"
	"textlens-go/pkg/ocr"
	"textlens-go/pkg/storage"
	"textlens-go/pkg/tika"
	"textlens-go/pkg/token"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	configPath := os.Getenv("TEXTLENS_CONFIG")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(log.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	if cfg.JWT.Secret == "" {
		log.Fatalf("jwt.secret 未配置")
	}

	// 3. 初始化数据库、Redis 与对象存储
	database.InitMySQL(cfg.Database.MySQL)
	defer database.Close()
	if cfg.Auth.RevocationStore == "redis" || cfg.Kafka.Enabled {
		database.InitRedis(cfg.Database.Redis)
	}
	storage.InitMinIO(cfg.MinIO)

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	chatRepo := repository.NewChatRepository(database.DB)
	interactionRepo := repository.NewInteractionRepository(database.DB)

	// 5. 外部服务客户端
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	revocation := newRevocationStore(cfg.Auth)
	defer revocation.Close()
	llmClient := llm.NewClient(cfg.LLM)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	extractor := newExtractor(cfg)
	images := storage.NewImageStore(storage.MinioClient, cfg.MinIO)

	// 6. 搜索索引与索引任务的投递方式
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		publisher     service.IndexPublisher = service.NoopPublisher{}
		searchHandler *handler.SearchHandler
	)
	if cfg.Elasticsearch.Addresses != "" {
		dims := 0
		if embeddingClient != nil {
			dims = cfg.Embedding.Dimensions
		}
		if err := es.InitES(cfg.Elasticsearch, dims); err != nil {
			log.Fatal("Elasticsearch 初始化失败", err)
		}
		index := es.NewChatIndex(es.ESClient, cfg.Elasticsearch.IndexName)
		processor := pipeline.NewProcessor(chatRepo, index, embeddingClient)
		searchHandler = handler.NewSearchHandler(service.NewSearchService(index, embeddingClient))

		if cfg.Kafka.Enabled {
			producer := kafka.NewProducer(cfg.Kafka)
			defer producer.Close()
			publisher = producer
			// 后台 Kafka 消费者随 rootCtx 退出
			go kafka.StartConsumer(rootCtx, cfg.Kafka, database.RDB, processor)
		} else {
			publisher = pipeline.InlinePublisher{Processor: processor}
		}
	} else {
		log.Warnf("未配置 elasticsearch.addresses，搜索功能不可用")
	}

	// 7. 初始化 Service (依赖注入)
	userService := service.NewUserService(userRepo, jwtManager, revocation)
	chatService := service.NewChatService(chatRepo, interactionRepo, extractor, llmClient, images, publisher,
		service.NewPromptBuilder(cfg.LLM.Prompt), cfg.Upload.MaxImageBytes)
	interactionService := service.NewInteractionService(chatRepo, interactionRepo)
	exportService := service.NewExportService(chatRepo)
	completionService := service.NewCompletionService(llmClient)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	handler.RegisterRoutes(r, handler.Routes{
		JWTManager: jwtManager,
		Revocation: revocation,
		Auth:       handler.NewAuthHandler(userService),
		User:       handler.NewUserHandler(userService),
		Chat:       handler.NewChatHandler(chatService, interactionService, exportService, cfg.Upload.MaxImageBytes),
		Stream:     handler.NewStreamHandler(chatService, jwtManager, revocation),
		Search:     searchHandler,
		Completion: handler.NewCompletionHandler(completionService),
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 先停止 Kafka 消费者
	cancel()

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("HTTP 服务器关闭失败", err)
	}
	log.Info("服务已优雅关闭")
}

// newRevocationStore 按配置选择登出 token 的存储位置。
func newRevocationStore(cfg config.AuthConfig) token.RevocationStore {
	if cfg.RevocationStore == "redis" {
		log.Info("token 吊销表使用 Redis")
		return token.NewRedisRevocationStore(database.RDB)
	}
	log.Info("token 吊销表使用进程内存")
	return token.NewMemoryRevocationStore()
}

// newExtractor 按 ocr.provider 选择文字识别实现。
func newExtractor(cfg config.Config) service.TextExtractor {
	switch cfg.OCR.Provider {
	case "tika":
		log.Infof("文字识别使用 Tika: %s", cfg.Tika.ServerURL)
		return tika.NewClient(cfg.Tika)
	case "ocrspace", "":
		log.Infof("文字识别使用 OCR.Space: %s", cfg.OCR.Endpoint)
		return ocr.NewClient(cfg.OCR)
	default:
		log.Fatalf("未知的 ocr.provider: %s", cfg.OCR.Provider)
		return nil
	}
}
