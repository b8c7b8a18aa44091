// Package app provides application-level wiring and dependency
// injection for the modelsentry server.
package app

import (
	"database/sql"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"modelsentry/internal/config"
	"modelsentry/internal/db/repository"
	"modelsentry/internal/domain"
	"modelsentry/internal/lifecycle"
	"modelsentry/internal/rules"
	"modelsentry/internal/service/analysis"
	"modelsentry/internal/service/autofix"
	"modelsentry/internal/service/queryexec"
	"modelsentry/internal/tabular"
)

const tabularTimeout = 60 * time.Second

// Deps holds the external dependencies that main() must provide:
// database handles, config, and the logger.
type Deps struct {
	Cfg     *config.Config
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Logger  *slog.Logger
}

// App holds the fully-wired application.
type App struct {
	Analysis  *analysis.Service
	Autofix   *autofix.Service
	Queries   *queryexec.Service
	Rules     domain.RuleProvider
	Jobs      *lifecycle.Manager
	Scheduler *analysis.Scheduler // nil when ANALYSIS_SCHEDULE is not set
}

// New wires all repositories, collaborators, and services from the
// provided deps.
func New(deps Deps) (*App, error) {
	cfg := deps.Cfg

	// === Repositories ===
	// Writes go through the single-connection pool; pure reads through
	// the read pool.
	modelRepo := repository.NewModelRepo(deps.WriteDB)
	runRepo := repository.NewRunRepo(deps.WriteDB)
	fixRepo := repository.NewFixSessionRepo(deps.WriteDB)
	execRepo := repository.NewQueryExecutionRepo(deps.WriteDB)
	historyRepo := repository.NewQueryExecutionRepo(deps.ReadDB)

	// === Collaborators ===
	var ruleProvider domain.RuleProvider
	if cfg.RulesURL != "" {
		ruleProvider = rules.NewHTTPProvider(cfg.RulesURL, cfg.RulesCacheTTL,
			deps.Logger.With("component", "rule-catalog"))
	} else {
		ruleProvider = rules.NewStaticProvider(rules.Builtin())
	}

	tabularClient := tabular.NewClient(tabularTimeout)
	queryClient := tabular.NewQueryClient(cfg.TabularServer, cfg.TabularDatabase, tabularTimeout)

	var chatClient *openai.Client
	if cfg.Agent.Enabled() {
		clientCfg := openai.DefaultConfig(cfg.Agent.APIKey)
		if cfg.Agent.BaseURL != "" {
			clientCfg.BaseURL = cfg.Agent.BaseURL
		}
		chatClient = openai.NewClientWithConfig(clientCfg)
	}

	jobs := lifecycle.NewManager(deps.Logger.With("component", "lifecycle"))

	// === Services ===
	engine := rules.NewEngine(deps.Logger.With("component", "rules-engine"))
	analysisSvc := analysis.NewService(
		modelRepo, runRepo, ruleProvider, tabularClient, engine, jobs,
		cfg.TabularServer, cfg.AnalysisTimeout,
		deps.Logger.With("component", "analysis"),
	)

	// Without an AI endpoint the session read paths still work;
	// starting a session fails when the agent first calls the chat API.
	var chat autofix.ChatCompleter
	var translator domain.QueryTranslator
	if chatClient != nil {
		chat = chatClient
		translator = queryexec.NewOpenAITranslator(chatClient, cfg.Agent.ChatModel)
	}
	autofixSvc := autofix.NewService(
		fixRepo, runRepo, modelRepo,
		chat, tabularClient, tabularClient, queryClient, jobs,
		autofix.Config{
			ChatModel:  cfg.Agent.ChatModel,
			MaxSteps:   cfg.Agent.MaxSteps,
			JobTimeout: cfg.FixTimeout,
		},
		deps.Logger.With("component", "autofix"),
	)

	queriesSvc := queryexec.NewService(
		execRepo, historyRepo, queryClient, translator, jobs,
		queryexec.Config{
			JobTimeout:   cfg.QueryTimeout,
			PollAttempts: cfg.QueryPollAttempts,
			PollInterval: cfg.QueryPollInterval,
		},
		deps.Logger.With("component", "queryexec"),
	)

	a := &App{
		Analysis: analysisSvc,
		Autofix:  autofixSvc,
		Queries:  queriesSvc,
		Rules:    ruleProvider,
		Jobs:     jobs,
	}

	if cfg.AnalysisSchedule != "" {
		scheduler, err := analysis.NewScheduler(analysisSvc, cfg.AnalysisSchedule,
			deps.Logger.With("component", "scheduler"))
		if err != nil {
			return nil, err
		}
		a.Scheduler = scheduler
	}

	return a, nil
}
