package graph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frerescollection/shopbot/internal/agent/dialog"
	"github.com/frerescollection/shopbot/internal/agent/graph/conversations"
	"github.com/frerescollection/shopbot/internal/agent/graph/nodes"
	"github.com/frerescollection/shopbot/internal/agent/model"
	"github.com/frerescollection/shopbot/internal/agent/repo"
	"github.com/frerescollection/shopbot/internal/metrics"
	"github.com/frerescollection/shopbot/internal/ratelimit"
	"github.com/frerescollection/shopbot/internal/shop/analytics"
	"github.com/frerescollection/shopbot/internal/shop/catalog"
	"github.com/frerescollection/shopbot/internal/shop/checkout"
	"github.com/frerescollection/shopbot/internal/shop/inventory"
	"github.com/frerescollection/shopbot/internal/shop/store/memory"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type sent struct {
	kind, to, body string
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeMessenger) SendText(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{"text", to, text})
	return f.err
}

func (f *fakeMessenger) SendImage(_ context.Context, to, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{"image", to, url})
	return f.err
}

func (f *fakeMessenger) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeChatModel struct {
	mu     sync.Mutex
	reply  *schema.Message
	err    error
	inputs [][]*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

type failingRepo struct {
	*repo.MemorySessionRepository
}

func (failingRepo) Load(context.Context, string) (*model.Session, error) {
	return nil, errors.New("firestore unavailable")
}

type fixture struct {
	store     *memory.Store
	repo      model.SessionRepository
	sessions  *conversations.SessionManager
	messenger *fakeMessenger
	registry  *prometheus.Registry
	runner    *Runner
}

type option func(*Config, *fixture)

func withOracle(m einomodel.BaseChatModel) option {
	return func(c *Config, _ *fixture) {
		c.Oracle = nodes.NewFallbackModel(m, "gemini-2.5-flash-lite", time.Second, c.Metrics)
		c.OracleModel = "gemini-2.5-flash-lite"
	}
}

func withLimit(n int) option {
	return func(c *Config, _ *fixture) {
		c.Limiter = ratelimit.NewWindow(n, time.Minute, ratelimit.WithClock(clock))
	}
}

func newFixture(t *testing.T, sessionRepo model.SessionRepository, opts ...option) *fixture {
	t.Helper()
	store := memory.NewStore(
		model.Product{ID: "1", Name: "Blusa lino", Price: decimal.NewFromInt(100), Stock: 50, Category: "Blusas", ImageURL: "https://img.example/1.jpg"},
		model.Product{ID: "2", Name: "Vestido rojo", Price: decimal.NewFromInt(600), Stock: 0, Category: "Vestidos"},
	)
	if sessionRepo == nil {
		sessionRepo = repo.NewMemorySessionRepository(30*time.Minute, repo.WithClock(clock))
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	cache := catalog.New(store, 5*time.Minute, catalog.WithClock(clock))
	inv := inventory.NewEngine(store, cache, inventory.WithMetrics(m))
	events := analytics.NewRecorder(store, analytics.WithClock(clock))
	business := model.BusinessConfig{Name: "Frere's Collection", Hours: "10 a 19", Contact: "+52 55 1234 5678"}
	engine := dialog.NewEngine(dialog.Dependencies{
		Catalog:   cache,
		Users:     store,
		Orders:    store,
		Inventory: inv,
		Finalizer: checkout.NewFinalizer(inv, store, checkout.WithClock(clock), checkout.WithRecorder(events)),
		Events:    events,
	}, dialog.WithClock(clock), dialog.WithBusiness(business))

	fx := &fixture{
		store:     store,
		repo:      sessionRepo,
		sessions:  conversations.NewSessionManager(sessionRepo, model.SessionConfig{IdleTimeout: 30 * time.Minute}, conversations.WithClock(clock)),
		messenger: &fakeMessenger{},
		registry:  reg,
	}
	cfg := Config{
		Sessions:  fx.sessions,
		Dialog:    engine,
		Catalog:   cache,
		Messenger: fx.messenger,
		Events:    events,
		Metrics:   m,
		Business:  business,
		Now:       clock,
	}
	for _, opt := range opts {
		opt(&cfg, fx)
	}

	runner, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	fx.runner = runner
	return fx
}

func (fx *fixture) send(t *testing.T, sender, text string) *model.TurnResult {
	t.Helper()
	out, err := fx.runner.Handle(context.Background(), model.Inbound{SenderID: sender, Text: text})
	require.NoError(t, err)
	require.NotNil(t, out)
	return out
}

func counter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestBuildRequiresCollaborators(t *testing.T) {
	_, err := Build(context.Background(), Config{})
	require.Error(t, err)
}

func TestMatchedTurnIsDeliveredAndPersisted(t *testing.T) {
	fx := newFixture(t, nil)

	out := fx.send(t, "u1", "¡Hola!")

	assert.Equal(t, "greeting", out.Intent)
	assert.Equal(t, model.StateStart, out.State)
	assert.False(t, out.Dropped)
	assert.Contains(t, out.Reply.Text, "Frere's Collection")
	assert.Equal(t, []sent{{"text", "u1", out.Reply.Text}}, fx.messenger.all())

	stored, err := fx.repo.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, model.StateStart, stored.State)

	var directions []any
	for _, ev := range fx.store.Events() {
		if ev.Type == model.EventMessage {
			directions = append(directions, ev.Attributes["direccion"])
		}
	}
	assert.Equal(t, []any{analytics.DirectionIn, analytics.DirectionOut}, directions)
	assert.Equal(t, 1.0, counter(t, fx.registry, "bot_turns_total"))
}

func TestStateCarriesAcrossTurns(t *testing.T) {
	fx := newFixture(t, nil)

	fx.send(t, "u1", "registrar")
	out := fx.send(t, "u1", "Juan Perez")

	assert.Equal(t, "registration_name", out.Intent)
	assert.Equal(t, model.StateRegisteringPhone, out.State)
}

func TestImagesAreSentBeforeText(t *testing.T) {
	fx := newFixture(t, nil)

	fx.send(t, "u1", "catalogo")
	out := fx.send(t, "u1", "blusas")

	require.Equal(t, []string{"https://img.example/1.jpg"}, out.Reply.Images)
	msgs := fx.messenger.all()
	require.Len(t, msgs, 3)
	assert.Equal(t, sent{"image", "u1", "https://img.example/1.jpg"}, msgs[1])
	assert.Equal(t, "text", msgs[2].kind)
}

func TestThrottledMessageIsDroppedWithNotice(t *testing.T) {
	fx := newFixture(t, nil, withLimit(2))

	fx.send(t, "u1", "registrar")
	fx.send(t, "u1", "Juan Perez")
	out := fx.send(t, "u1", "5512345678")

	assert.True(t, out.Dropped)
	assert.Equal(t, nodes.IntentThrottled, out.Intent)
	assert.Equal(t, dialog.MsgThrottled, out.Reply.Text)
	msgs := fx.messenger.all()
	assert.Equal(t, dialog.MsgThrottled, msgs[len(msgs)-1].body)

	stored, err := fx.repo.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, model.StateRegisteringPhone, stored.State, "dropped message never reaches the state machine")
	assert.Equal(t, 1.0, counter(t, fx.registry, "bot_rate_limited_total"))

	other := fx.send(t, "u2", "hola")
	assert.False(t, other.Dropped)
}

func TestUnmatchedWithoutOracleRepliesHelp(t *testing.T) {
	fx := newFixture(t, nil)

	out := fx.send(t, "u1", "qué tal el clima")

	assert.Equal(t, dialog.IntentFallback, out.Intent)
	assert.Equal(t, dialog.HelpText, out.Reply.Text)
}

func TestUnmatchedGoesToOracle(t *testing.T) {
	oracle := &fakeChatModel{reply: &schema.Message{
		Role:         schema.Assistant,
		Content:      "  Tenemos la Blusa lino por $100. Escribe *catalogo* para verla.  ",
		ResponseMeta: &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 300, CompletionTokens: 40, TotalTokens: 340}},
	}}
	fx := newFixture(t, nil, withOracle(oracle))

	out := fx.send(t, "u1", "¿Qué me recomiendas para una boda?")

	assert.Equal(t, nodes.IntentOracle, out.Intent)
	assert.Equal(t, "Tenemos la Blusa lino por $100. Escribe *catalogo* para verla.", out.Reply.Text)

	require.Len(t, oracle.inputs, 1)
	prompt := oracle.inputs[0]
	require.Len(t, prompt, 2)
	assert.Equal(t, schema.System, prompt[0].Role)
	assert.Contains(t, prompt[0].Content, "Frere's Collection")
	assert.Contains(t, prompt[0].Content, "Blusa lino | Blusas | $100.00 MXN | ID 1")
	assert.NotContains(t, prompt[0].Content, "Vestido rojo", "out of stock products are not offered")
	assert.Equal(t, schema.User, prompt[1].Role)
	assert.Equal(t, "¿Qué me recomiendas para una boda?", prompt[1].Content)
	assert.Equal(t, 1.0, counter(t, fx.registry, "bot_oracle_calls_total"))
}

func TestMatchedTurnSkipsOracle(t *testing.T) {
	oracle := &fakeChatModel{reply: schema.AssistantMessage("nope", nil)}
	fx := newFixture(t, nil, withOracle(oracle))

	out := fx.send(t, "u1", "horario")

	assert.Equal(t, "hours", out.Intent)
	assert.Empty(t, oracle.inputs)
}

func TestOracleFailureApologizes(t *testing.T) {
	fx := newFixture(t, nil, withOracle(&fakeChatModel{err: errors.New("quota exceeded")}))

	out := fx.send(t, "u1", "cuéntame un chiste")

	assert.Equal(t, dialog.MsgApology, out.Reply.Text)
	assert.Equal(t, model.StateStart, out.State)
}

func TestEmptyOracleAnswerFallsBackToHelp(t *testing.T) {
	fx := newFixture(t, nil, withOracle(&fakeChatModel{reply: schema.AssistantMessage("   ", nil)}))

	out := fx.send(t, "u1", "cuéntame un chiste")

	assert.Equal(t, dialog.HelpText, out.Reply.Text)
}

func TestHydrateFailureApologizes(t *testing.T) {
	broken := failingRepo{repo.NewMemorySessionRepository(30*time.Minute, repo.WithClock(clock))}
	fx := newFixture(t, broken)

	out, err := fx.runner.Handle(context.Background(), model.Inbound{SenderID: "u1", Text: "hola"})

	require.Error(t, err)
	assert.Equal(t, dialog.MsgApology, out.Reply.Text)
	assert.Equal(t, []sent{{"text", "u1", dialog.MsgApology}}, fx.messenger.all())
}

func TestDeliveryFailureDoesNotFailTurn(t *testing.T) {
	fx := newFixture(t, nil)
	fx.messenger.err = errors.New("graph api 500")

	out := fx.send(t, "u1", "registrar")

	assert.Equal(t, model.StateRegisteringName, out.State)
}

func TestSameSenderTurnsAreSerialized(t *testing.T) {
	fx := newFixture(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.runner.Handle(context.Background(), model.Inbound{SenderID: "u1", Text: "pedido 1"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s, err := fx.sessions.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, s.Cart.Quantity("1"))
}
