package flowgate

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/flowgate/flowgate/internal/coordinator"
	"github.com/flowgate/flowgate/internal/dispatch"
	"github.com/flowgate/flowgate/internal/gate"
	"github.com/flowgate/flowgate/internal/httpapi"
	"github.com/flowgate/flowgate/internal/pathcompile"
	"github.com/flowgate/flowgate/internal/persistence"
	"github.com/flowgate/flowgate/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Workflow             = api.Workflow
	User                 = api.User
	ExecutionRecord      = api.ExecutionRecord
	ActionResult         = api.ActionResult
	ActionKind           = api.ActionKind
	RunStatus            = api.RunStatus
	Graph                = api.Graph
	Node                 = api.Node
	Edge                 = api.Edge
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver

	Notification = gate.Notification
	Summary      = gate.Summary

	Delivery  = dispatch.Delivery
	Scheduler = dispatch.Scheduler
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status and kind values for convenience.

const (
	RunRunning               = api.RunRunning
	RunCompleted             = api.RunCompleted
	RunCompletedWithFailures = api.RunCompletedWithFailures
	RunSuspended             = api.RunSuspended
	RunFailed                = api.RunFailed

	KindTrigger           = api.KindTrigger
	KindMessagingWebhook  = api.KindMessagingWebhook
	KindTeamChannelPost   = api.KindTeamChannelPost
	KindContentStoreWrite = api.KindContentStoreWrite
	KindWait              = api.KindWait

	CreditsUnlimited = api.CreditsUnlimited
)

// Config tunes a Core. The zero value is usable for tests: no outbound
// delivery, no scheduler, default gate windows.
type Config struct {
	// Delivery performs the outbound action side effects. Nil means every
	// dispatchable action is dispatched against a nil delivery and will
	// fail; supply one in any real deployment.
	Delivery Delivery

	// Scheduler registers deferred resume callbacks for Wait steps. Nil
	// makes Wait steps record a skipped result instead of suspending.
	Scheduler Scheduler

	// Observer receives run and action lifecycle callbacks.
	Observer Observer

	// Cooldown overrides the default 10s per-subject trigger spacing.
	Cooldown time.Duration

	// DedupCapacity overrides the default 1000-token dedup history.
	DedupCapacity int

	// Logger is used by the gate and HTTP layer; nil means slog.Default().
	Logger *slog.Logger
}

// Core bundles the engine's moving parts behind one handle: the persistence
// stores, the path-executing coordinator, and the inbound event gate.
type Core struct {
	Stores      persistence.Persistence
	Coordinator *coordinator.Coordinator
	Gate        *gate.Gate

	logger *slog.Logger
}

func newCore(p persistence.Persistence, cfg Config) *Core {
	table := dispatch.NewTable(cfg.Delivery)
	coord := coordinator.New(p, table, cfg.Scheduler, cfg.Observer)
	g := gate.New(p, coord, gate.Options{
		Cooldown:      cfg.Cooldown,
		DedupCapacity: cfg.DedupCapacity,
		Logger:        cfg.Logger,
	})

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Core{
		Stores:      p,
		Coordinator: coord,
		Gate:        g,
		logger:      logger,
	}
}

// NewInMemoryCore returns a Core backed entirely by in-memory stores.
func NewInMemoryCore(cfg Config) *Core {
	s := persistence.NewInMemoryStore()
	return newCore(persistence.Persistence{Workflows: s, Executions: s, Users: s}, cfg)
}

// NewSQLiteCore returns a Core that persists workflows, executions, and
// users in a SQLite database. The schema is created on first use.
func NewSQLiteCore(db *sql.DB, cfg Config) (*Core, error) {
	s, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return newCore(persistence.Persistence{Workflows: s, Executions: s, Users: s}, cfg), nil
}

// NewMongoCore returns a Core that persists state in MongoDB.
func NewMongoCore(client *mongo.Client, database string, cfg Config) *Core {
	s := persistence.NewMongoStore(client, database)
	return newCore(persistence.Persistence{Workflows: s, Executions: s, Users: s}, cfg)
}

// HandleNotification screens one inbound notification and fans it out to the
// subject's published workflows. See gate.Gate.Handle for the short-circuit
// error contract.
func (c *Core) HandleNotification(ctx context.Context, n Notification) (*Summary, error) {
	return c.Gate.Handle(ctx, n)
}

// ResumeWorkflow continues a workflow suspended behind a Wait step.
func (c *Core) ResumeWorkflow(ctx context.Context, workflowID string) (*ExecutionRecord, error) {
	return c.Gate.Resume(ctx, workflowID)
}

// CompilePath turns a validated graph into its execution path.
func CompilePath(g Graph) []ActionKind {
	return pathcompile.Compile(g)
}

// HTTPApp builds the fiber application serving the engine's HTTP surface.
// Useful directly in tests via app.Test; use Listen for a real server.
func (c *Core) HTTPApp() *fiber.App {
	srv := httpapi.New(httpapi.Config{
		Gate:        c.Gate,
		Persistence: c.Stores,
		Logger:      c.logger,
	})
	return srv.App()
}

// Listen serves the HTTP surface on addr until the process exits.
func (c *Core) Listen(addr string) error {
	return c.HTTPApp().Listen(addr)
}
