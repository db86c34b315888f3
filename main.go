package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	classifierx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/classifier"
	composerx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/composer"
	contractx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/contract"
	llmx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/llm"
	orchestratorx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/orchestrator"
	promptx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/prompt"
	routerx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/router"
	statex "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/state"
	toolx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/tool"
	warehousex "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/warehouse"
	configx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/pkg/config"
	_ "github.com/tanpawarit/Callsight-Conversational-BI-Agent/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/pkg/openrouter"
)

type AgentConfig struct {
	MemoryWindow       int           `split_words:"true" default:"10"`
	AnalysisBudget     int           `split_words:"true" default:"4"`
	SimpleFactsTimeout time.Duration `split_words:"true" default:"3s"`
	ToolTimeout        time.Duration `split_words:"true" default:"10s"`
	SessionTTL         time.Duration `envconfig:"SESSION_TTL" default:"24h"`
}

func main() {
	ctx := context.Background()

	agentCfg := configx.MustNew[AgentConfig]("AGENT")
	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	warehouseCfg := configx.MustNew[warehousex.PostgresConfig]("WAREHOUSE")

	wh, cleanup := buildWarehouse(*warehouseCfg)
	defer cleanup()

	registry := toolx.NewRegistry()
	for _, t := range toolx.Catalog(wh) {
		if err := registry.Register(t); err != nil {
			log.Fatal().Err(err).Str("tool", t.Name).Msg("register tool")
		}
	}

	classifier := buildClassifier(ctx, *llmCfg, registry)
	log.Info().Int("tools", len(registry.List())).Msg("tool registry sealed")

	router, err := routerx.New(registry, routerx.Config{
		AnalysisBudget:     agentCfg.AnalysisBudget,
		SimpleFactsTimeout: agentCfg.SimpleFactsTimeout,
		ToolTimeout:        agentCfg.ToolTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build router")
	}

	store := buildStore(*agentCfg)

	orch, err := orchestratorx.New(ctx, store, classifier, router, composerx.New(),
		orchestratorx.Config{MemoryWindow: agentCfg.MemoryWindow})
	if err != nil {
		log.Fatal().Err(err).Msg("build orchestrator")
	}

	runREPL(ctx, orch)
}

// buildWarehouse connects to Postgres when a DSN is configured and falls
// back to the deterministic fixture warehouse otherwise.
func buildWarehouse(cfg warehousex.PostgresConfig) (warehousex.Warehouse, func()) {
	if strings.TrimSpace(cfg.DSN) == "" {
		log.Info().Msg("no warehouse dsn configured, using fixture data")
		return warehousex.NewFixture(time.Now()), func() {}
	}

	pg, err := warehousex.NewPostgres(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connect warehouse")
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			log.Warn().Err(err).Msg("close warehouse")
		}
	}
}

// buildStore persists sessions in Upstash Redis when a REST URL is
// configured and keeps them in process memory otherwise.
func buildStore(cfg AgentConfig) statex.Store {
	if strings.TrimSpace(os.Getenv("UPSTASH_URL")) == "" {
		log.Info().Msg("no upstash url configured, using in-memory sessions")
		return statex.NewMemoryStore(statex.WithSessionTTL(cfg.SessionTTL))
	}

	redisCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH")
	store, err := statex.NewUpstashRedisStore(*redisCfg, statex.WithTTL(cfg.SessionTTL))
	if err != nil {
		log.Fatal().Err(err).Msg("build session store")
	}
	return store
}

// buildClassifier prefers the model-backed classifier when an OpenRouter
// key is present and extends the registry with the narrative tool. Without
// a key the rule-based classifier runs alone.
func buildClassifier(ctx context.Context, cfg llmx.Config, registry *toolx.Registry) contractx.Classifier {
	if !cfg.Enabled() {
		log.Info().Msg("no openrouter api key, using rule-based classifier")
		return classifierx.NewRules()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid openrouter config")
	}

	narrativeCfg := cfg.OpenRouterFor(llmx.RoleNarrative)
	client := openrouterx.NewClient(narrativeCfg)
	if client == nil {
		log.Fatal().Msg("initialize openrouter client")
	}
	narrative := toolx.NewNarrativeTool(client, narrativeCfg.Model,
		int64(cfg.MaxCompletionToken), float64(narrativeCfg.Temperature))
	if err := registry.Register(narrative); err != nil {
		log.Fatal().Err(err).Msg("register narrative tool")
	}

	classifierCfg := cfg.OpenRouterFor(llmx.RoleClassifier)
	chatModel, err := classifierCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("build classifier model")
	}

	prompts := promptx.LoadPromptSet()
	model, err := classifierx.NewModel(ctx, chatModel, prompts.Classifier)
	if err != nil {
		log.Fatal().Err(err).Msg("build model classifier")
	}
	return model
}

func runREPL(ctx context.Context, orch *orchestratorx.Orchestrator) {
	sessionID := fmt.Sprintf("cli-%d", time.Now().Unix())
	fmt.Println("Callsight BI agent. Ask about call-center KPIs; 'exit' to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			break
		}

		result, err := orch.HandleQuery(ctx, sessionID, query)
		if err != nil {
			log.Error().Err(err).Msg("handle query")
			continue
		}
		fmt.Println(result.Answer)
	}
}
