// Package app wires configuration, storage, cache, agents and transports
// into one dependency bag handed to the services.
package app

import (
	"gorm.io/gorm"

	"github.com/jodi-app/jodi-server/internal/agent"
	"github.com/jodi-app/jodi-server/internal/auth"
	"github.com/jodi-app/jodi-server/internal/cache"
	"github.com/jodi-app/jodi-server/internal/config"
	"github.com/jodi-app/jodi-server/internal/db"
	"github.com/jodi-app/jodi-server/internal/llm"
	_ "github.com/jodi-app/jodi-server/internal/llm/providers"
	"github.com/jodi-app/jodi-server/internal/push"
	"github.com/jodi-app/jodi-server/internal/repository"
	"github.com/jodi-app/jodi-server/internal/ws"
)

// Context carries every shared dependency.
type Context struct {
	Config *config.Config
	DB     *gorm.DB
	Cache  *cache.Cache
	Tokens *auth.Manager
	LLM    *llm.Client
	Hub    *ws.Hub
	Push   *push.Sender

	Users           *repository.UserRepository
	Profiles        *repository.ProfileRepository
	Swipes          *repository.SwipeRepository
	Matches         *repository.MatchRepository
	Conversations   *repository.ConversationRepository
	Subscriptions   *repository.SubscriptionRepository
	Safety          *repository.SafetyRepository
	AgentLogs       *repository.AgentLogRepository
	Notifications   *repository.NotificationRepository
	Recommendations *repository.RecommendationRepository

	Orchestrator *agent.Orchestrator
	Matching     *agent.MatchingAgent
	SafetyAgent  *agent.SafetyAgent
	Billing      *agent.SubscriptionAgent
}

// New connects to MySQL and Redis and assembles the full graph.
func New(cfg *config.Config) (*Context, error) {
	gdb, err := db.Connect(cfg)
	if err != nil {
		return nil, err
	}
	redisCache, err := cache.NewRedis(cfg)
	if err != nil {
		return nil, err
	}
	return Assemble(cfg, gdb, redisCache), nil
}

// Assemble builds the graph on top of already-open connections. Tests use it
// with sqlite and miniredis.
func Assemble(cfg *config.Config, gdb *gorm.DB, redisCache *cache.Cache) *Context {
	appCtx := &Context{
		Config: cfg,
		DB:     gdb,
		Cache:  redisCache,
		Hub:    ws.NewHub(),
	}

	appCtx.Tokens = auth.NewManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
		cfg.Auth.ResetTokenTTL,
	)

	appCtx.Users = repository.NewUserRepository(gdb)
	appCtx.Profiles = repository.NewProfileRepository(gdb)
	appCtx.Swipes = repository.NewSwipeRepository(gdb)
	appCtx.Matches = repository.NewMatchRepository(gdb)
	appCtx.Conversations = repository.NewConversationRepository(gdb)
	appCtx.Subscriptions = repository.NewSubscriptionRepository(gdb)
	appCtx.Safety = repository.NewSafetyRepository(gdb)
	appCtx.AgentLogs = repository.NewAgentLogRepository(gdb)
	appCtx.Notifications = repository.NewNotificationRepository(gdb)
	appCtx.Recommendations = repository.NewRecommendationRepository(gdb)

	appCtx.Push = push.NewSender(cfg, appCtx.Notifications)

	if cfg.LLM.OpenAIKey != "" || cfg.LLM.AnthropicKey != "" {
		appCtx.LLM = llm.NewClient(cfg)
	}

	appCtx.Matching = agent.NewMatchingAgent(appCtx.Profiles, appCtx.Recommendations, appCtx.LLM)
	appCtx.SafetyAgent = agent.NewSafetyAgent(appCtx.LLM)
	appCtx.Billing = agent.NewSubscriptionAgent(appCtx.Subscriptions, appCtx.Users)
	appCtx.Billing.ConfigureGateways(cfg.Payments.KhaltiSecretKey, cfg.Payments.ESewaMerchantID)

	runner := agent.NewRunner(appCtx.AgentLogs)
	appCtx.Orchestrator = agent.NewOrchestrator(runner, appCtx.AgentLogs,
		agent.NewUserProfileAgent(appCtx.Profiles, appCtx.LLM),
		appCtx.Matching,
		agent.NewConversationAgent(appCtx.Conversations, appCtx.Profiles, appCtx.LLM),
		appCtx.SafetyAgent,
		agent.NewFraudAgent(appCtx.Users, appCtx.Swipes, appCtx.Safety, appCtx.Profiles, appCtx.LLM),
		agent.NewImageAgent(appCtx.Profiles),
		appCtx.Billing,
	)

	return appCtx
}

// Close releases the connections New opened.
func (c *Context) Close() error {
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			return sqlDB.Close()
		}
	}
	return nil
}
