package graph

import (
	"context"
	"fmt"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	"github.com/frerescollection/shopbot/internal/agent/dialog"
	"github.com/frerescollection/shopbot/internal/agent/graph/conversations"
	"github.com/frerescollection/shopbot/internal/agent/graph/nodes"
	"github.com/frerescollection/shopbot/internal/agent/graph/observers"
	"github.com/frerescollection/shopbot/internal/agent/model"
	"github.com/frerescollection/shopbot/internal/metrics"
	"github.com/frerescollection/shopbot/internal/ratelimit"
	"github.com/frerescollection/shopbot/internal/shop/analytics"
	"github.com/frerescollection/shopbot/internal/shop/catalog"
	logx "github.com/frerescollection/shopbot/pkg/logger"
)

// Config holds everything needed to build the per-message turn graph.
type Config struct {
	Limiter   ratelimit.Limiter
	Sessions  *conversations.SessionManager
	Dialog    *dialog.Engine
	Catalog   *catalog.Cache
	Messenger model.Messenger // nil skips outbound delivery
	Events    *analytics.Recorder
	Metrics   *metrics.BotMetrics
	Business  model.BusinessConfig

	// Oracle answers messages no intent matched. Nil replies with the help text.
	Oracle         einomodel.BaseChatModel
	OracleModel    string
	CatalogExcerpt int

	Now func() time.Time
}

// GraphBuilder handles the construction of the turn graph
type GraphBuilder struct {
	config *Config
	graph  *compose.Graph[model.Inbound, *model.TurnResult]
}

// Runner executes one turn per inbound message, serialized per sender.
type Runner struct {
	runnable  compose.Runnable[model.Inbound, *model.TurnResult]
	sessions  *conversations.SessionManager
	messenger model.Messenger
}

// Handle runs the turn graph while holding the sender lock, so two messages of
// one sender never interleave between hydrate and persist. On a graph failure
// the apology is delivered when possible and the error is returned for logging.
func (r *Runner) Handle(ctx context.Context, in model.Inbound) (*model.TurnResult, error) {
	unlock := r.sessions.Lock(in.SenderID)
	defer unlock()

	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		logx.Error().Err(err).Str("sender_id", in.SenderID).Msg("turn failed")
		if r.messenger != nil {
			if sendErr := r.messenger.SendText(ctx, in.SenderID, dialog.MsgApology); sendErr != nil {
				logx.Error().Err(sendErr).Str("sender_id", in.SenderID).Msg("apology delivery failed")
			}
		}
		return &model.TurnResult{
			SenderID: in.SenderID,
			Reply:    model.Reply{Text: dialog.MsgApology},
			Intent:   "error",
		}, err
	}
	return out, nil
}

// Build validates cfg, builds the graph and returns a Runner.
func Build(ctx context.Context, cfg Config) (*Runner, error) {
	runnable, err := BuildGraph(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	logx.Debug().Bool("oracle", cfg.Oracle != nil).Msg("Turn graph built successfully")
	return &Runner{runnable: runnable, sessions: cfg.Sessions, messenger: cfg.Messenger}, nil
}

// BuildGraph constructs and returns the compiled turn graph
func BuildGraph(ctx context.Context, config *Config) (compose.Runnable[model.Inbound, *model.TurnResult], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Sessions == nil {
		return nil, fmt.Errorf("session manager is nil")
	}
	if config.Dialog == nil {
		return nil, fmt.Errorf("dialog engine is nil")
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.Inbound, *model.TurnResult](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

func (b *GraphBuilder) hasOracle() bool {
	return b.config.Oracle != nil
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() {
	c := b.config

	b.graph.AddLambdaNode(nodes.NodeAdmission,
		nodes.NewAdmissionNode(c.Limiter, c.Metrics),
		compose.WithStatePreHandler(nodes.NewAdmissionPreHandler(c.Now)),
	)
	b.graph.AddLambdaNode(nodes.NodeThrottled, nodes.NewThrottledNode())
	b.graph.AddLambdaNode(nodes.NodeHydrate, nodes.NewHydrateNode(c.Sessions))
	b.graph.AddLambdaNode(nodes.NodeDialog,
		nodes.NewDialogNode(c.Dialog, c.Events),
		compose.WithStatePostHandler(nodes.NewDialogPostHandler()),
	)
	b.graph.AddLambdaNode(nodes.NodeReply, nodes.NewReplyNode())

	if b.hasOracle() {
		b.graph.AddLambdaNode(nodes.NodeFallbackPrompt,
			nodes.NewFallbackPromptNode(c.Catalog, c.Business, c.CatalogExcerpt),
		)
		b.graph.AddChatModelNode(nodes.NodeOracle, c.Oracle,
			compose.WithStatePostHandler(nodes.NewOraclePostHandler(c.OracleModel)),
		)
		b.graph.AddLambdaNode(nodes.NodeOracleReply, nodes.NewOracleReplyNode())
	}

	b.graph.AddLambdaNode(nodes.NodeDeliver, nodes.NewDeliverNode(c.Messenger, c.Events))
	b.graph.AddLambdaNode(nodes.NodePersist, nodes.NewPersistNode(c.Sessions, c.Metrics, c.Now))
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeAdmission},
		{nodes.NodeThrottled, nodes.NodeDeliver},
		{nodes.NodeHydrate, nodes.NodeDialog},
		{nodes.NodeReply, nodes.NodeDeliver},
		{nodes.NodeDeliver, nodes.NodePersist},
		{nodes.NodePersist, compose.END},
	}
	if b.hasOracle() {
		edges = append(edges,
			[2]string{nodes.NodeFallbackPrompt, nodes.NodeOracle},
			[2]string{nodes.NodeOracle, nodes.NodeOracleReply},
			[2]string{nodes.NodeOracleReply, nodes.NodeDeliver},
		)
	} else {
		edges = append(edges, [2]string{nodes.NodeDialog, nodes.NodeReply})
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	admissionBranch := compose.NewGraphBranch(
		nodes.NewAdmissionCondition(),
		map[string]bool{
			nodes.NodeThrottled: true,
			nodes.NodeHydrate:   true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeAdmission, admissionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding admission branch")
		return fmt.Errorf("error adding admission branch: %w", err)
	}

	if !b.hasOracle() {
		return nil
	}
	fallbackBranch := compose.NewGraphBranch(
		nodes.NewDialogCondition(),
		map[string]bool{
			nodes.NodeReply:          true,
			nodes.NodeFallbackPrompt: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeDialog, fallbackBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding fallback branch")
		return fmt.Errorf("error adding fallback branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.Inbound, *model.TurnResult], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(20))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
