package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/contacts"
	"github.com/sells-group/outreach-cli/internal/jobs"
	"github.com/sells-group/outreach-cli/pkg/research"
)

// env bundles the orchestrator and its closable collaborators for commands.
type env struct {
	Orchestrator *jobs.Orchestrator
	Contacts     contacts.Store
}

func (e *env) Close() {
	if e.Contacts != nil {
		if err := e.Contacts.Close(); err != nil {
			zap.L().Warn("contact store close failed", zap.Error(err))
		}
	}
}

// initOrchestrator builds the research client, contact store, and scheduler
// from config.
func initOrchestrator(ctx context.Context) (*env, error) {
	client, err := buildResearchClient(cfg.Research)
	if err != nil {
		return nil, err
	}
	client = research.NewRateLimited(client, cfg.Research.GlobalRPS)

	store, err := buildContactStore(ctx, cfg.Contacts)
	if err != nil {
		return nil, err
	}

	// In config, group_delay_ms: 0 means no pause between groups; the
	// scheduler reserves zero for its own default.
	groupDelay := time.Duration(cfg.Batch.GroupDelayMS) * time.Millisecond
	if cfg.Batch.GroupDelayMS <= 0 {
		groupDelay = -1
	}

	orch := jobs.NewOrchestrator(
		jobs.NewStore(),
		client,
		store,
		jobs.NewEmitter(),
		jobs.SchedulerConfig{
			Concurrency: cfg.Batch.Concurrency,
			GroupDelay:  groupDelay,
			MaxAttempts: cfg.Research.MaxAttempts,
		},
	)

	return &env{Orchestrator: orch, Contacts: store}, nil
}

func buildResearchClient(rc config.ResearchConfig) (research.Client, error) {
	switch rc.Provider {
	case "anthropic":
		if rc.Key == "" {
			return nil, eris.New("research.key is required for the anthropic provider")
		}
		var opts []research.AnthropicOption
		if rc.Model != "" {
			opts = append(opts, research.WithModel(rc.Model))
		}
		return research.NewAnthropicClient(rc.Key, opts...), nil
	case "http":
		if rc.BaseURL == "" {
			return nil, eris.New("research.base_url is required for the http provider")
		}
		return research.NewClient(rc.Key, rc.BaseURL), nil
	default:
		return nil, eris.Errorf("unknown research provider %q", rc.Provider)
	}
}

// buildContactStore returns nil when write-back is disabled; research results
// then live only in the job table.
func buildContactStore(ctx context.Context, cc config.ContactsConfig) (contacts.Store, error) {
	switch cc.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		return contacts.NewSQLite(cc.DatabaseURL)
	case "postgres":
		return contacts.NewPostgres(ctx, cc.DatabaseURL)
	case "salesforce":
		return contacts.NewSalesforce(contacts.SalesforceCreds{
			ClientID: cc.Salesforce.ClientID,
			Username: cc.Salesforce.Username,
			KeyPath:  cc.Salesforce.KeyPath,
			LoginURL: cc.Salesforce.LoginURL,
		})
	default:
		return nil, eris.Errorf("unknown contacts driver %q", cc.Driver)
	}
}
