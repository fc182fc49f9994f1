package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upmolt/backend/internal/admin"
	"github.com/upmolt/backend/internal/auth"
	"github.com/upmolt/backend/internal/config"
	"github.com/upmolt/backend/internal/execution"
	"github.com/upmolt/backend/internal/handlers"
	"github.com/upmolt/backend/internal/ledger"
	"github.com/upmolt/backend/internal/policy"
	"github.com/upmolt/backend/internal/registry"
	"github.com/upmolt/backend/internal/repository"
	"github.com/upmolt/backend/internal/router"
	"github.com/upmolt/backend/internal/services"
	"github.com/upmolt/backend/internal/settlement"
	"github.com/upmolt/backend/internal/vault"
)

type app struct {
	router http.Handler
	tasks  *services.TaskService
}

// buildApp wires repositories, services and handlers into the HTTP router.
func buildApp(ctx context.Context, env *config.Env, pool *pgxpool.Pool, insertDispatch execution.InsertDispatchTxFunc, logger *slog.Logger) (*app, error) {
	agentRepo := repository.NewAgentRepo(pool)
	taskRepo := repository.NewTaskRepo(pool)
	userRepo := repository.NewUserRepo(pool)
	subRepo := repository.NewSubscriptionRepo(pool)
	reviewRepo := repository.NewReviewRepo(pool)
	notificationRepo := repository.NewNotificationRepo(pool)
	ledgerRepo := ledger.NewRepository(pool)

	cipher, err := vault.NewCipher(env.VaultKey)
	if err != nil {
		return nil, err
	}
	validator, err := services.NewPayloadValidator()
	if err != nil {
		return nil, err
	}
	adminPolicy, err := policy.NewAdminPolicy(ctx, env.AdminEmails, env.AdminPolicyFile, logger)
	if err != nil {
		return nil, err
	}
	if env.PlatformWallet == "" {
		logger.Warn("PLATFORM_WALLET is not set; payment references will have no recipient")
	}

	dispatcher := execution.NewDispatcher(execution.Config{
		WebhookTimeout:   env.WebhookTimeout,
		CallbackURL:      env.CallbackURL(),
		AssistantBaseURL: env.AssistantBaseURL,
		PollInterval:     env.AssistantPollInterval,
		MaxPolls:         env.AssistantMaxPolls,
		PlaceholderDelay: env.PlaceholderDelay,
	}, vault.New(cipher, agentRepo), validator, logger)

	notifications := &services.NotificationService{Store: notificationRepo, Logger: logger}

	ledgerSvc := ledger.NewService(ledger.Deps{
		Pool:           pool,
		Payments:       ledgerRepo,
		Tasks:          taskRepo,
		Subscriptions:  subRepo,
		Verifier:       settlement.NewSolanaVerifier(env.SolanaRPCURL),
		Quotes:         settlement.NewQuoter(env.SOLPriceURL, env.SOLPriceTTL, env.SOLPriceFallback, logger),
		Recipient:      env.PlatformWallet,
		InsertDispatch: insertDispatch,
		Notifier:       notifications,
		Logger:         logger,
	})

	taskSvc := &services.TaskService{
		Pool:           pool,
		Tasks:          taskRepo,
		Agents:         agentRepo,
		Subscriptions:  subRepo,
		Reviews:        reviewRepo,
		Users:          userRepo,
		Dispatcher:     dispatcher,
		InsertDispatch: insertDispatch,
		Notifier:       notifications,
		Logger:         logger,
	}
	gigSvc := &services.GigService{
		Pool:         pool,
		Gigs:         repository.NewGigRepo(pool),
		Applications: repository.NewApplicationRepo(pool),
		Comments:     repository.NewCommentRepo(pool),
		Agents:       agentRepo,
		Users:        userRepo,
		Logger:       logger,
	}
	subSvc := &services.SubscriptionService{
		Pool:          pool,
		Subscriptions: subRepo,
		Agents:        agentRepo,
		Ledger:        ledgerSvc,
		Logger:        logger,
	}

	authSvc := auth.NewService(auth.NewRepository(pool), env.SessionSecret, env.SessionTTL)
	registrySvc := registry.NewService(registry.Deps{
		Agents:   agentRepo,
		Reviews:  reviewRepo,
		Users:    userRepo,
		Ledgers:  registry.NewRepository(pool),
		Sealer:   cipher,
		Prober:   dispatcher,
		ClaimURL: env.ClaimURL,
		Logger:   logger,
	})
	adminSvc := &admin.Service{
		Repo:       admin.NewRepository(pool),
		Ledger:     ledgerRepo,
		UserStore:  userRepo,
		TaskStore:  taskRepo,
		AgentStore: agentRepo,
		Logger:     logger,
	}

	secureCookie := strings.HasPrefix(env.SiteURL, "https://")
	r := router.New(router.Deps{
		Auth:          auth.NewHandler(authSvc, env.SessionTTL, secureCookie, logger),
		Registry:      registry.NewHandler(registrySvc, logger),
		Admin:         admin.NewHandler(adminSvc, adminPolicy.IsAdmin, logger),
		Tasks:         &handlers.TaskHandler{Tasks: taskSvc, Validator: validator, Logger: logger},
		Gigs:          &handlers.GigHandler{Gigs: gigSvc, Logger: logger},
		Payments:      &handlers.PaymentHandler{Payments: ledgerSvc, Logger: logger},
		Subscriptions: &handlers.SubscriptionHandler{Subscriptions: subSvc, Logger: logger},
		Notifications: &handlers.NotificationHandler{Notifications: notifications, Logger: logger},
		Agent:         &handlers.AgentHandler{Gigs: gigSvc, Logger: logger},
		Sessions:      authSvc,
		AgentKeys:     agentRepo,
		IsAdmin:       adminPolicy.IsAdmin,
		DB:            pool,
		Logger:        logger,
	})
	return &app{router: r, tasks: taskSvc}, nil
}
