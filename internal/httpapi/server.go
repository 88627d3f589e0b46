// Package httpapi exposes the engine over HTTP: the inbound notification
// endpoint, the scheduler resume callback, workflow/flow-save CRUD, and the
// execution history query.
package httpapi

import (
	"errors"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/flowgate/flowgate/internal/gate"
	"github.com/flowgate/flowgate/internal/pathcompile"
	"github.com/flowgate/flowgate/internal/persistence"
	"github.com/flowgate/flowgate/pkg/api"
)

// Notification identity headers. The inbound webhook carries a resource id
// (mapping to a subject) and a message sequence number (for dedup).
const (
	HeaderResourceID    = "x-resource-id"
	HeaderMessageNumber = "x-message-number"
)

// Config wires a Server.
type Config struct {
	Gate        *gate.Gate
	Persistence persistence.Persistence
	Logger      *slog.Logger
}

// Server is the fiber application hosting the engine's HTTP surface.
type Server struct {
	app    *fiber.App
	gate   *gate.Gate
	stores persistence.Persistence
	logger *slog.Logger
}

// New builds the Server and registers all routes.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			AppName: "flowgate",
		}),
		gate:   cfg.Gate,
		stores: cfg.Persistence,
		logger: logger,
	}

	s.app.Post("/api/notifications", s.handleNotification)
	s.app.All("/api/cron", s.handleResume)

	s.app.Post("/api/workflows", s.handleCreateWorkflow)
	s.app.Get("/api/workflows", s.handleListWorkflows)
	s.app.Get("/api/workflows/:id", s.handleGetWorkflow)
	s.app.Delete("/api/workflows/:id", s.handleDeleteWorkflow)
	s.app.Post("/api/workflows/:id/flow", s.handleSaveFlow)
	s.app.Post("/api/workflows/:id/publish", s.handlePublish)
	s.app.Post("/api/workflows/:id/template", s.handleTemplate)

	s.app.Get("/api/executions", s.handleListExecutions)
	s.app.Get("/api/users/:id/credits", s.handleCredits)

	return s
}

// App exposes the underlying fiber application, mainly for tests via
// app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on the given address until the process exits.
func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error { return s.app.Shutdown() }

func (s *Server) handleNotification(c *fiber.Ctx) error {
	n := gate.Notification{
		ResourceID:    c.Get(HeaderResourceID),
		MessageNumber: c.Get(HeaderMessageNumber),
	}

	summary, err := s.gate.Handle(c.Context(), n)
	if err != nil {
		var rateLimited *api.RateLimitedError
		switch {
		case errors.Is(err, api.ErrMissingResource):
			return respond(c, fiber.StatusBadRequest, "No resource ID provided")
		case errors.Is(err, api.ErrSubjectNotFound):
			return respond(c, fiber.StatusNotFound, "User not found")
		case errors.Is(err, api.ErrEntitlementExhausted):
			return respond(c, fiber.StatusForbidden, "Insufficient credits")
		case errors.As(err, &rateLimited):
			secs := int(math.Ceil(rateLimited.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"message":    "Rate limited. Please wait " + strconv.Itoa(secs) + " seconds.",
				"retryAfter": secs,
			})
		}
		s.logger.ErrorContext(c.Context(), "notification handler error", slog.Any("error", err))
		return respond(c, fiber.StatusInternalServerError, "Internal server error")
	}

	return c.Status(fiber.StatusOK).JSON(summary)
}

func (s *Server) handleResume(c *fiber.Ctx) error {
	flowID := c.Query("flow_id")
	if flowID == "" {
		return respond(c, fiber.StatusBadRequest, "No flow_id provided")
	}

	rec, err := s.gate.Resume(c.Context(), flowID)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return respond(c, fiber.StatusNotFound, "Workflow not found")
		}
		// A callback for a workflow with nothing pending is normal: the
		// cron job may fire again after the remainder already ran.
		s.logger.WarnContext(c.Context(), "resume skipped",
			slog.String("flow_id", flowID), slog.Any("error", err))
		return respond(c, fiber.StatusOK, "Nothing to resume")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":   "Workflow resumed",
		"execution": rec,
	})
}

type createWorkflowRequest struct {
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCreateWorkflow(c *fiber.Ctx) error {
	var req createWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.UserID == "" || req.Name == "" {
		return respond(c, fiber.StatusBadRequest, "userId and name are required")
	}

	wf := &api.Workflow{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   time.Now(),
	}
	if err := s.stores.Workflows.SaveWorkflow(c.Context(), wf); err != nil {
		s.logger.ErrorContext(c.Context(), "create workflow failed", slog.Any("error", err))
		return respond(c, fiber.StatusInternalServerError, "Internal server error")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Workflow created",
		"workflow": wf,
	})
}

func (s *Server) handleListWorkflows(c *fiber.Ctx) error {
	userID := c.Query("userId")
	if userID == "" {
		return respond(c, fiber.StatusBadRequest, "userId is required")
	}

	workflows, err := s.stores.Workflows.ListWorkflows(c.Context(), userID)
	if err != nil {
		s.logger.ErrorContext(c.Context(), "list workflows failed", slog.Any("error", err))
		return respond(c, fiber.StatusInternalServerError, "Internal server error")
	}
	if workflows == nil {
		workflows = []*api.Workflow{}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"workflows": workflows})
}

func (s *Server) handleGetWorkflow(c *fiber.Ctx) error {
	wf, err := s.stores.Workflows.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return respond(c, fiber.StatusNotFound, "Workflow not found")
		}
		s.logger.ErrorContext(c.Context(), "get workflow failed", slog.Any("error", err))
		return respond(c, fiber.StatusInternalServerError, "Internal server error")
	}
	return c.Status(fiber.StatusOK).JSON(wf)
}

func (s *Server) handleDeleteWorkflow(c *fiber.Ctx) error {
	err := s.stores.Workflows.DeleteWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return respond(c, fiber.StatusNotFound, "Workflow not found")
		}
		s.logger.ErrorContext(c.Context(), "delete workflow failed", slog.Any("error", err))
		return respond(c, fiber.StatusInternalServerError, "Internal server error")
	}
	return respond(c, fiber.StatusOK, "Workflow deleted")
}

type saveFlowRequest struct {
	Nodes string `json:"nodes"`
	Edges string `json:"edges"`
	// FlowPath is the editor's own compilation. It is accepted for
	// compatibility with the save contract but the path is always
	// recompiled server-side so a run can never see a stale pre-edit path.
	FlowPath string `json:"flowPath"`
}

func (s *Server) handleSaveFlow(c *fiber.Ctx) error {
	var req saveFlowRequest
	if err := c.BodyParser(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, "Invalid request body")
	}

	wf, err := s.stores.Workflows.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return respond(c, fiber.StatusNotFound, "Workflow not found")
		}
		s.logger.ErrorContext(c.Context(), "save flow failed", slog.Any("error", err))
		return respond(c, fiber.StatusInternalServerError, "Internal server error")
	}

	graph, err := api.ParseGraph(req.Nodes, req.Edges)
	if err != nil {
		return respond(c, fiber.StatusBadRequest, "Invalid graph: "+err.Error())
	}
	if err := graph.Validate(); err != nil {
		var invalid *api.GraphInvalidError
		if errors.As(err, &invalid) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "Invalid graph",
				"reasons": invalid.Reasons,
			})
		}
		return respond(c, fiber.StatusBadRequest, "Invalid graph")
	}

	wf.Nodes = req.Nodes
	wf.Edges = req.Edges
	wf.FlowPath = pathcompile.Compile(graph)

	if err := s.stores.Workflows.UpdateWorkflow(c.Context(), wf); err != nil {
		s.logger.ErrorContext(c.Context(), "save flow failed", slog.Any("error", err))
		return respond(c, fiber.StatusInternalServerError, "Internal server error")
	}

	return respond(c, fiber.StatusOK, "Flow saved")
}

type publishRequest struct {
	Publish bool `json:"publish"`
}

func (s *Server) handlePublish(c *fiber.Ctx) error {
	var req publishRequest
	if err := c.BodyParser(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, "Invalid request body")
	}

	err := s.stores.Workflows.SetPublish(c.Context(), c.Params("id"), req.Publish)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return respond(c, fiber.StatusNotFound, "Workflow not found")
		}
		s.logger.ErrorContext(c.Context(), "publish failed", slog.Any("error", err))
		return respond(c, fiber.StatusInternalServerError, "Internal server error")
	}

	if req.Publish {
		return respond(c, fiber.StatusOK, "Workflow published")
	}
	return respond(c, fiber.StatusOK, "Workflow unpublished")
}

type templateRequest struct {
	Kind        api.ActionKind `json:"kind"`
	Content     string         `json:"content"`
	Channels    []string       `json:"channels"`
	AccessToken string         `json:"accessToken"`
	DatabaseID  string         `json:"databaseId"`
}

func (s *Server) handleTemplate(c *fiber.Ctx) error {
	var req templateRequest
	if err := c.BodyParser(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, "Invalid request body")
	}

	wf, err := s.stores.Workflows.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return respond(c, fiber.StatusNotFound, "Workflow not found")
		}
		s.logger.ErrorContext(c.Context(), "template update failed", slog.Any("error", err))
		return respond(c, fiber.StatusInternalServerError, "Internal server error")
	}

	switch req.Kind {
	case api.KindMessagingWebhook:
		wf.Webhook.Template = req.Content
		if req.AccessToken != "" {
			wf.Webhook.URL = req.AccessToken
		}
	case api.KindTeamChannelPost:
		wf.Channel.Template = req.Content
		if req.AccessToken != "" {
			wf.Channel.AccessToken = req.AccessToken
		}
		wf.Channel.Channels = mergeChannels(wf.Channel.Channels, req.Channels)
	case api.KindContentStoreWrite:
		wf.Record.Template = req.Content
		if req.AccessToken != "" {
			wf.Record.AccessToken = req.AccessToken
		}
		if req.DatabaseID != "" {
			wf.Record.DatabaseID = req.DatabaseID
		}
	default:
		return respond(c, fiber.StatusBadRequest, "Unknown template kind")
	}

	if err := s.stores.Workflows.UpdateWorkflow(c.Context(), wf); err != nil {
		s.logger.ErrorContext(c.Context(), "template update failed", slog.Any("error", err))
		return respond(c, fiber.StatusInternalServerError, "Internal server error")
	}

	return respond(c, fiber.StatusOK, string(req.Kind)+" template saved")
}

func (s *Server) handleListExecutions(c *fiber.Ctx) error {
	filter := persistence.ExecutionFilter{
		UserID:     c.Query("userId"),
		WorkflowID: c.Query("workflowId"),
		Status:     api.RunStatus(c.Query("status")),
		Limit:      c.QueryInt("limit", persistence.DefaultListLimit),
		Offset:     c.QueryInt("offset", 0),
	}

	records, total, err := s.stores.Executions.ListExecutions(c.Context(), filter)
	if err != nil {
		s.logger.ErrorContext(c.Context(), "list executions failed", slog.Any("error", err))
		return respond(c, fiber.StatusInternalServerError, "Internal server error")
	}
	if records == nil {
		records = []*api.ExecutionRecord{}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"executions": records,
		"total":      total,
		"limit":      filter.Limit,
		"offset":     filter.Offset,
	})
}

func (s *Server) handleCredits(c *fiber.Ctx) error {
	user, err := s.stores.Users.GetUser(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, persistence.ErrUserNotFound) {
			return respond(c, fiber.StatusNotFound, "User not found")
		}
		s.logger.ErrorContext(c.Context(), "credits lookup failed", slog.Any("error", err))
		return respond(c, fiber.StatusInternalServerError, "Internal server error")
	}

	tier := user.Tier
	if tier == "" {
		tier = "Free"
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"credits": user.Credits,
		"tier":    tier,
	})
}

func respond(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"message": message})
}

func mergeChannels(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	merged := make([]string, 0, len(existing)+len(added))
	for _, ch := range append(append([]string{}, existing...), added...) {
		if ch == "" || seen[ch] {
			continue
		}
		seen[ch] = true
		merged = append(merged, ch)
	}
	return merged
}
