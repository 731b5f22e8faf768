package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/supportdesk/internal/config"
	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/extract"
	"github.com/cloo-solutions/supportdesk/internal/logger"
	"github.com/cloo-solutions/supportdesk/internal/openai"
	"github.com/cloo-solutions/supportdesk/internal/repository"
	"github.com/cloo-solutions/supportdesk/internal/service"
	"github.com/cloo-solutions/supportdesk/internal/storage"
	"github.com/cloo-solutions/supportdesk/internal/whatsapp"
	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
)

var errOpenAIRequired = errors.New("SUPPORTDESK_OPENAI_API_KEY is required")

// app holds the services shared by the daemon and the one-shot commands.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	pool      *pgxpool.Pool
	retrieval *service.RetrievalService
	campaigns *service.CampaignService
	sender    *whatsapp.Client
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogMode, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return newApp(ctx, cfg, log)
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	if !cfg.HasOpenAI() {
		return nil, errOpenAIRequired
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	embeddingClient := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	})
	embedder := service.NewEmbeddingGenerator(embeddingClient, service.EmbeddingConfig{
		Concurrency: cfg.EmbeddingConcurrency,
		Timeout:     cfg.EmbeddingTimeout,
	})

	retrievalCfg := service.DefaultRetrievalConfig()
	retrievalCfg.ExternalTimeout = cfg.ExternalDBTimeout
	retrieval := service.NewRetrievalServiceWithConfig(
		extract.NewExtractor(),
		service.NewChunker(service.DefaultChunkConfig()),
		embedder,
		repository.NewKnowledgeChunkRepository(pool),
		repository.NewTxRunner(pool),
		log,
		retrievalCfg,
	).WithConnector(repository.NewPostgresConnector())

	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Info("upload archive ready", "bucket", cfg.S3Bucket)
		retrieval.WithArchive(s3Client)
	}

	a := &app{
		cfg:       cfg,
		log:       log,
		pool:      pool,
		retrieval: retrieval,
	}

	var sender service.TemplateSender = unconfiguredSender{}
	if cfg.HasWhatsApp() {
		a.sender = whatsapp.NewClient(whatsapp.Config{
			Token:         cfg.WhatsAppToken,
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
			APIVersion:    cfg.WhatsAppAPIVersion,
		})
		sender = a.sender
	} else {
		log.Warn("whatsapp is not configured, campaign sends will fail")
	}

	campaignCfg := service.DefaultCampaignConfig()
	campaignCfg.SendTimeout = cfg.SendTimeout
	a.campaigns = service.NewCampaignServiceWithConfig(repository.NewCampaignRepository(pool), sender, log, campaignCfg)

	return a, nil
}

func (a *app) Close() {
	a.pool.Close()
	a.log.Sync()
}

type unconfiguredSender struct{}

func (unconfiguredSender) SendTemplateMessage(ctx context.Context, recipient, templateName string, data domain.TemplateData) (*whatsapp.SendResponse, error) {
	return nil, domain.ProviderSendError("whatsapp not configured: SUPPORTDESK_WHATSAPP_TOKEN required", nil)
}

func (unconfiguredSender) SendTextMessage(ctx context.Context, recipient, text string) (*whatsapp.SendResponse, error) {
	return nil, domain.ProviderSendError("whatsapp not configured: SUPPORTDESK_WHATSAPP_TOKEN required", nil)
}
