package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/charmbracelet/log"
	"github.com/iamvkosarev/lingro/config"
	httpserver "github.com/iamvkosarev/lingro/internal/http-server"
	in_memory "github.com/iamvkosarev/lingro/internal/storage/in-memory"
	key_value "github.com/iamvkosarev/lingro/internal/storage/key-value"
	"github.com/iamvkosarev/lingro/internal/usecase"
	"github.com/iamvkosarev/lingro/pkg/backend"
	"github.com/iamvkosarev/lingro/pkg/duckduckgo"
	"github.com/iamvkosarev/lingro/pkg/gotrue"
	"github.com/iamvkosarev/lingro/pkg/recorder"
	"github.com/iamvkosarev/lingro/pkg/s3storage"
	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc"
)

const (
	ApplicationName = "lingro"

	reaperInterval = time.Minute
)

type storages struct {
	users usecase.ProfileStorage
	auth  usecase.AuthStorage
	close func() error
}

func newStorages(ctx context.Context, cfg config.Redis, logger *log.Logger) (storages, error) {
	if cfg.Endpoint == "" {
		logger.Warn("redis endpoint is not set, keeping profiles and auth sessions in memory")
		return storages{
			users: in_memory.NewUserStorage(),
			auth:  in_memory.NewAuthStorage(),
			close: func() error { return nil },
		}, nil
	}

	rdb := redis.NewClient(
		&redis.Options{
			Addr:     cfg.Endpoint,
			Password: cfg.Password,
		},
	)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return storages{}, fmt.Errorf("failed to ping redis %s: %w", cfg.Endpoint, err)
	}
	return storages{
		users: key_value.NewUserStorage(rdb),
		auth:  key_value.NewAuthStorage(rdb),
		close: rdb.Close,
	}, nil
}

func buildSessions(ctx context.Context, cfg *config.Config, logger *log.Logger) (*usecase.SessionUsecase, error) {
	httpClient := &http.Client{Timeout: 2 * time.Minute}

	chatUsecase := usecase.NewChatUsecase(
		usecase.ChatUsecaseDeps{
			Logger:     logger,
			HTTPClient: httpClient,
		},
		cfg.Chat,
	)

	backendClient, err := backend.NewClient(cfg.Backend.URL, backend.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	backendUsecase := usecase.NewBackendUsecase(
		usecase.BackendUsecaseDeps{
			Backend: backendClient,
		},
		cfg.Backend,
	)

	imageUsecase := usecase.NewImageUsecase(
		usecase.ImageUsecaseDeps{
			Provider: duckduckgo.NewClient(
				duckduckgo.WithBaseURL(cfg.Search.BaseURL),
				duckduckgo.WithLocale(cfg.Search.Locale),
			),
			Logger: logger,
		},
		cfg.Search,
	)

	deps := usecase.SessionDeps{
		Chat:    chatUsecase,
		Images:  imageUsecase,
		Backend: backendUsecase,
		Logger:  logger,
	}

	if cfg.Recorder.Enabled {
		deps.Recorder = recorder.NewFFmpeg(
			recorder.FFmpegOptions{
				InputFormat: cfg.Recorder.InputFormat,
				InputDevice: cfg.Recorder.InputDevice,
				Dir:         cfg.Recorder.Dir,
			},
		)
		deps.Prober = recorder.FFprobe{}
		logger.Info("voice recorder enabled", "format", cfg.Recorder.InputFormat, "device", cfg.Recorder.InputDevice)
	}

	if cfg.Storage.Enabled() {
		archive, err := s3storage.NewMinIOClient(
			ctx,
			cfg.Storage.Endpoint,
			cfg.Storage.AccessKeyID,
			cfg.Storage.SecretAccessKey,
			cfg.Storage.BucketName,
			cfg.Storage.UseSSL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create recording storage: %w", err)
		}
		deps.Archive = archive
		logger.Info("recording archive enabled", "endpoint", cfg.Storage.Endpoint, "bucket", cfg.Storage.BucketName)
	}

	return usecase.NewSessionUsecase(
		usecase.SessionUsecaseDeps{
			Session: deps,
			Logger:  logger,
		},
		cfg.Session,
		cfg.Recorder,
		cfg.Storage,
	), nil
}

// RunServer serves the HTTP API until ctx is done.
func RunServer(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	stores, err := newStorages(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	sessions, err := buildSessions(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sessions.CloseAll()

	authClient, err := gotrue.NewClient(cfg.Auth.SupabaseURL, cfg.Auth.SupabaseAnonKey)
	if err != nil {
		return fmt.Errorf("failed to create auth client: %w", err)
	}
	authUsecase := usecase.NewAuthUsecase(
		usecase.AuthUsecaseDeps{
			Provider: authClient,
			Storage:  stores.auth,
			Logger:   logger,
		},
		cfg.Auth,
	)

	server := httpserver.New(
		cfg.HTTP.Address,
		httpserver.ServerDeps{
			Sessions: sessions,
			Auth:     authUsecase,
		},
		logger,
	)

	wg := conc.NewWaitGroup()
	reaperCtx, stopReaper := context.WithCancel(ctx)
	wg.Go(func() { sessions.RunReaper(reaperCtx, reaperInterval) })
	defer func() {
		stopReaper()
		wg.Wait()
	}()

	return server.Run(ctx)
}

// RunBot serves chat sessions over Telegram until ctx is done.
func RunBot(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	if cfg.Telegram.TelegramAPIToken == "" {
		return fmt.Errorf("telegram api token is required to run the bot")
	}

	bot, err := api.NewBotAPI(cfg.Telegram.TelegramAPIToken)
	if err != nil {
		return fmt.Errorf("failed to create new bot: %w", err)
	}
	logger.Info("authorized on telegram", "account", bot.Self.UserName)

	stores, err := newStorages(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	sessions, err := buildSessions(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sessions.CloseAll()

	userUsecase := usecase.NewUserUsecase(
		usecase.UserUsecaseDeps{
			ProfileStorage: stores.users,
		},
		cfg.Session.Locale,
		cfg.Backend.DefaultVoice,
	)

	telegramUsecase, err := usecase.NewTelegramUsecase(
		cfg.Telegram, usecase.TelegramUsecaseDeps{
			Bot:      bot,
			Sessions: sessions,
			User:     userUsecase,
			Logger:   logger.WithPrefix("telegram"),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create telegram usecase: %w", err)
	}

	wg := conc.NewWaitGroup()
	reaperCtx, stopReaper := context.WithCancel(ctx)
	wg.Go(func() { sessions.RunReaper(reaperCtx, reaperInterval) })
	defer func() {
		stopReaper()
		wg.Wait()
	}()

	return telegramUsecase.Run(ctx)
}
