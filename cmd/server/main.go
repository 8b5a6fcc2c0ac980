// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"multimodal-rag-go/internal/config"
	"multimodal-rag-go/internal/handler"
	"multimodal-rag-go/internal/middleware"
	"multimodal-rag-go/internal/model"
	"multimodal-rag-go/internal/pipeline"
	"multimodal-rag-go/internal/repository"
	"multimodal-rag-go/internal/service"
	"multimodal-rag-go/internal/vectorstore"
	"multimodal-rag-go/pkg/database"
	"multimodal-rag-go/pkg/embedding"
	"multimodal-rag-go/pkg/kafka"
	"multimodal-rag-go/pkg/llm"
	"multimodal-rag-go/pkg/log"
	"multimodal-rag-go/pkg/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	cfg := config.MustLoad("./configs/config.yaml")

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 与对象存储
	database.InitMySQL(cfg.Database.MySQL, &model.DocumentRecord{})
	database.InitRedis(cfg.Database.Redis)
	if cfg.MinIO.Endpoint != "" {
		storage.InitMinIO(cfg.MinIO)
	} else {
		log.Warnf("未配置 MinIO，图片只能通过 HTTP 获取，异步入库不可用对象暂存")
	}

	// 4. 初始化向量集合
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	embeddingClient := embedding.NewClient(cfg.Embedding)
	store, closeStore, err := vectorstore.Open(rootCtx, cfg, embeddingClient)
	if err != nil {
		log.Fatal("向量存储初始化失败", err)
	}
	defer closeStore()

	// 5. 初始化 Repository
	docRepo := repository.NewDocumentRepository(database.DB)
	var visionCache repository.VisionCache
	if database.RDB != nil {
		visionCache = repository.NewVisionCache(database.RDB, cfg.Vision.CacheTTL)
	}

	// 6. 初始化 Service (依赖注入)
	llmClient := llm.NewClient(cfg.LLM)
	var visionService service.VisionService
	if cfg.Vision.Enabled {
		visionClient := llm.NewVisionClient(cfg.LLM, cfg.Vision)
		fetcher := service.NewAssetFetcher(cfg.MinIO, cfg.Vision.FetchTimeout)
		visionService = service.NewVisionService(visionClient, fetcher, visionCache, cfg.Vision.FetchTimeout)
		log.Infof("实时图像分析已启用, 模型: %s", visionClient.Model())
	}
	generationService := service.NewGenerationService(llmClient, visionService, cfg.Vision.Enabled, cfg.LLM.Generation)
	retrievalService := service.NewRetrievalService(store)
	queryService := service.NewQueryService(retrievalService, generationService, store,
		cfg.Server.MaxQueryLen, cfg.Generation.DefaultMode, cfg.Generation.DefaultLanguage)
	chatService := service.NewChatService(queryService, generationService)
	ingestService := service.NewIngestService(store, docRepo)
	documentService := service.NewDocumentService(docRepo, ingestService, cfg.MinIO)

	// 7. 启动后台 Kafka 入库消费者
	if cfg.Kafka.Brokers != "" {
		kafka.InitProducer(cfg.Kafka)
		processor := pipeline.NewProcessor(ingestService, cfg.MinIO)
		go kafka.StartConsumer(rootCtx, cfg.Kafka, processor)
	} else {
		log.Warnf("未配置 Kafka，仅支持同步入库")
	}

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	queryHandler := handler.NewQueryHandler(queryService)
	documentHandler := handler.NewDocumentHandler(documentService)
	r.GET("/health", handler.NewHealthHandler(queryService, cfg.VectorStore.Backend, cfg.Vision.Enabled).Health)

	apiV1 := r.Group("/api/v1")
	{
		query := apiV1.Group("")
		query.Use(middleware.Timeout(cfg.Server.QueryTimeout))
		{
			query.POST("/query", queryHandler.Query)
			query.POST("/search", handler.NewSearchHandler(retrievalService).Retrieve)
			query.GET("/stats", queryHandler.Stats)
			query.GET("/strategies", queryHandler.Strategies)
		}

		documents := apiV1.Group("/documents")
		{
			documents.GET("", documentHandler.ListDocuments)
			documents.GET("/download", documentHandler.GenerateDownloadURL)
			documents.POST("/ingest", middleware.Timeout(cfg.Server.UploadTimeout), documentHandler.Ingest)
		}
		apiV1.DELETE("/collections", documentHandler.ResetCollections)

		// Chat 路由 (WebSocket)
		apiV1.GET("/chat/ws", handler.NewChatHandler(chatService).Handle)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s, 向量后端: %s", srv.Addr, cfg.VectorStore.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止消费者并刷新生产者
	cancelRoot()
	kafka.CloseProducer()
	log.Info("服务已优雅关闭")
}
