package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/DevRickLin/feishu-market-bot/internal/api"
	"github.com/DevRickLin/feishu-market-bot/internal/biz"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/usecase"
	"github.com/DevRickLin/feishu-market-bot/internal/conf"
	"github.com/DevRickLin/feishu-market-bot/internal/data"
	"github.com/DevRickLin/feishu-market-bot/internal/infra/feishu"
	"github.com/DevRickLin/feishu-market-bot/internal/server"
	"github.com/DevRickLin/feishu-market-bot/internal/service"
)

const (
	sessionCleanupInterval = time.Hour
	shutdownTimeout        = 10 * time.Second
)

// runtime is the wired application shared by every command
type runtime struct {
	cfg       *conf.Config
	feishu    *feishu.Client
	repos     *data.Repositories
	events    data.AMQPEventRepo
	scheduler *service.JobScheduler
	uc        *biz.Usecases
}

func newRuntime(ctx context.Context, cfg *conf.Config) (*runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	rt := &runtime{cfg: cfg}

	rt.feishu = feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret)
	rt.feishu.SetDownloadDir(cfg.Store.ImageDir)

	var events repo.EventRepo
	if cfg.Events.URL != "" {
		amqpRepo, err := data.NewAMQPEventRepo(cfg.Events.URL, cfg.Events.Exchange)
		if err != nil {
			return nil, fmt.Errorf("connect event broker: %w", err)
		}
		rt.events = amqpRepo
		events = amqpRepo
		log.Info().Str("exchange", cfg.Events.Exchange).Msg("listing events enabled")
	}

	validator := data.NewImageValidator(cfg.Vision.APIKey, cfg.Vision.BaseURL, cfg.Vision.Model, cfg.Vision.UnsafeThreshold)
	if cfg.Vision.APIKey == "" {
		log.Info().Msg("vision API key not set, image safety check disabled")
	}

	repos, err := data.NewRepositories(rt.feishu, validator, events, data.Options{
		DBPath:        cfg.Store.DBPath,
		ChannelChatID: cfg.Feishu.ChannelChatID,
		AdminOpenID:   cfg.Feishu.AdminOpenID,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("create repositories: %w", err)
	}
	rt.repos = repos
	log.Info().Str("db", cfg.Store.DBPath).Msg("store opened")

	rt.scheduler = service.NewJobScheduler()
	rt.scheduler.Start(ctx)

	rt.uc = biz.NewUsecases(biz.Deps{
		Listing:    repos.Listing,
		Profile:    repos.Profile,
		Preference: repos.Preference,
		Session:    repos.Session,
		Message:    repos.Message,
		Channel:    repos.Channel,
		Vision:     repos.Vision,
		Events:     repos.Events,
		Scheduler:  rt.scheduler,
	}, biz.Options{
		Engine: usecase.EngineConfig{
			Catalog:          cfg.Catalog,
			Location:         cfg.Location,
			PostLinkTemplate: cfg.Feishu.PostLinkTemplate,
			AdminName:        cfg.Feishu.AdminName,
			AutoPostEnabled:  cfg.AutoPost.Enabled,
			AutoPostInterval: cfg.AutoPost.Interval(),
		},
		AutoPost: usecase.AutoPostConfig{
			Limit:      cfg.AutoPost.Limit,
			Delay:      cfg.AutoPost.Delay(),
			RetryAfter: cfg.AutoPost.RetryAfter(),
		},
		IdleTimeout: cfg.Store.SessionIdleTimeout(),
	})
	return rt, nil
}

// Close stops the scheduler and releases the store and broker connection
func (rt *runtime) Close() {
	if rt.scheduler != nil {
		rt.scheduler.Stop()
	}
	if rt.repos != nil {
		if err := rt.repos.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}
	if rt.events != nil {
		if err := rt.events.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close event broker")
		}
	}
}

func newServeCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the bot, the scheduler and the admin API",
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, f.Config)
		},
	}
}

func serve(ctx context.Context, cfg *conf.Config) error {
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	jobs := service.NewJobsRunner(rt.scheduler, rt.uc.Schedule, rt.uc.AutoPost, rt.uc.Session, service.JobsConfig{
		AutoPostEnabled:    cfg.AutoPost.Enabled,
		AutoPostFirstDelay: cfg.AutoPost.FirstDelay(),
		AutoPostInterval:   cfg.AutoPost.Interval(),
		CleanupInterval:    sessionCleanupInterval,
	})
	if err := jobs.Start(ctx); err != nil {
		return err
	}

	apiServer := api.NewServer(rt.uc.Listing, rt.uc.Publish, rt.uc.AutoPost, rt.scheduler, rt.uc.Session, cfg.API.Port)
	errCh := make(chan error, 2)
	go func() {
		if err := apiServer.Start(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	convSvc := service.NewConversationService(rt.uc.Conversation, rt.uc.Session, rt.repos.Message)
	feishuServer := server.NewFeishuServer(rt.feishu, convSvc)
	go func() {
		if err := feishuServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("feishu connection: %w", err)
		}
	}()

	log.Info().
		Int("api_port", cfg.API.Port).
		Bool("auto_post", cfg.AutoPost.Enabled).
		Str("timezone", cfg.Location.String()).
		Msg("marketbot started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-errCh:
		log.Error().Err(err).Msg("component failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if stopErr := apiServer.Stop(shutdownCtx); stopErr != nil {
		log.Warn().Err(stopErr).Msg("api server shutdown")
	}
	return err
}

func newSweepCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "run one auto-post sweep and exit",
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := newRuntime(ctx, f.Config)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.uc.AutoPost.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("candidates: %d, published: %d, failed: %d, opted out: %d, cooling down: %d\n",
				report.Candidates, len(report.Published), len(report.Failed), report.OptedOut, report.CoolingDown)
			for _, id := range report.Published {
				fmt.Printf("  published %s\n", id)
			}
			for _, failure := range report.Failed {
				fmt.Printf("  failed %s: %s\n", failure.ListingID, failure.Error)
			}
			return nil
		},
	}
}

func newPublishCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "publish one listing to the channel and exit",
		ArgsUsage: "<listing id>",
		Action: func(ctx context.Context, c *cli.Command) error {
			id := c.Args().First()
			if id == "" {
				return fmt.Errorf("listing id is required")
			}

			rt, err := newRuntime(ctx, f.Config)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.uc.Publish.Publish(ctx, id)
			if res != nil {
				fmt.Println(usecase.FormatResult(res))
			}
			return err
		},
	}
}

func newNotifyCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:      "notify",
		Usage:     "send a text message to one user and exit",
		ArgsUsage: "<open_id> <message>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() < 2 {
				return fmt.Errorf("usage: notify <open_id> <message>")
			}
			userID := c.Args().Get(0)
			text := strings.Join(c.Args().Slice()[1:], " ")

			rt, err := newRuntime(ctx, f.Config)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.repos.Message.NotifyUser(ctx, userID, text); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
			fmt.Printf("message sent to %s\n", userID)
			return nil
		},
	}
}
