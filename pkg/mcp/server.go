package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/wireflow/internal/logging"
	"github.com/rendis/wireflow/internal/store"
	"github.com/rendis/wireflow/internal/streaming"
	"github.com/rendis/wireflow/internal/validation"
)

// WireflowServerDeps holds the dependencies for creating a WireflowServer.
type WireflowServerDeps struct {
	Store     store.Store
	Hub       streaming.EventHub
	Validator *validation.ItemValidator
	Logger    *slog.Logger
}

// WireflowServer exposes the dependency editor of stored games as MCP tools.
type WireflowServer struct {
	store     store.Store
	hub       streaming.EventHub
	validator *validation.ItemValidator
	logger    *slog.Logger
	editors   *editors
	sessions  *SessionRegistry
	notifier  *Notifier
	mcpServer *server.MCPServer
}

// NewWireflowServer creates a WireflowServer with every tool registered.
func NewWireflowServer(deps WireflowServerDeps) *WireflowServer {
	logger := deps.Logger
	if logger == nil {
		logger = logging.New(os.Stderr, "info", false)
	}

	s := &WireflowServer{
		store:     deps.Store,
		hub:       deps.Hub,
		validator: deps.Validator,
		logger:    logger,
		editors:   newEditors(deps.Store, deps.Hub, logger),
		sessions:  NewSessionRegistry(),
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, session server.ClientSession) {
		s.sessions.Remove(session.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"wireflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("Wireflow edits the unlock conditions of game items as a graph. Use wireflow.items to load and list items, wireflow.connect and wireflow.combine to edit conditions, wireflow.dependency to read or preview a condition, wireflow.render to draw a game, wireflow.query for jq queries, wireflow.history for past editor events and wireflow.watch to receive live ones."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewNotifier(mcpSrv, s.sessions, logger)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *WireflowServer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.editors.closeAll()
	s.startNotifier(ctx)

	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// ServeSSE serves the tools over SSE on addr until ctx is cancelled.
func (s *WireflowServer) ServeSSE(ctx context.Context, addr, baseURL string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.editors.closeAll()
	s.startNotifier(ctx)

	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))
	errCh := make(chan error, 1)
	go func() { errCh <- sse.Start(addr) }()
	s.logger.Info("sse transport listening", "addr", addr, "base_url", baseURL)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := sse.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *WireflowServer) startNotifier(ctx context.Context) {
	if s.hub == nil {
		return
	}
	go func() {
		if err := s.notifier.Run(ctx, s.hub); err != nil {
			s.logger.Warn("event notifications disabled", "error", err)
		}
	}()
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *WireflowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *WireflowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: itemsTool(), Handler: s.handleItems},
		{Tool: dependencyTool(), Handler: s.handleDependency},
		{Tool: connectTool(), Handler: s.handleConnect},
		{Tool: combineTool(), Handler: s.handleCombine},
		{Tool: renderTool(), Handler: s.handleRender},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: historyTool(), Handler: s.handleHistory},
		{Tool: watchTool(), Handler: s.handleWatch},
	}
}

// --- Tool definitions ---

func itemsTool() mcp.Tool {
	return mcp.NewTool("wireflow.items",
		mcp.WithDescription("List, fetch, replace or delete the items of a game"),
		mcp.WithString("op", mcp.Required(),
			mcp.Enum("games", "list", "get", "put", "delete"),
			mcp.Description("Operation to perform"),
		),
		mcp.WithString("game_id", mcp.Description("Game ID (required except for games)")),
		mcp.WithNumber("item_id", mcp.Description("Item ID for get and delete")),
		mcp.WithArray("items", mcp.Description("Full item batch for put; replaces the stored items")),
	)
}

func dependencyTool() mcp.Tool {
	return mcp.NewTool("wireflow.dependency",
		mcp.WithDescription("Read back an item's condition from the diagram, or preview whether it is satisfied"),
		mcp.WithString("game_id", mcp.Required(), mcp.Description("Game ID")),
		mcp.WithNumber("item_id", mcp.Required(), mcp.Description("Item whose condition is read")),
		mcp.WithString("selector", mcp.Enum("dependsOn", "disappearOn"), mcp.Description("Condition field (default: dependsOn)")),
		mcp.WithString("op", mcp.Enum("read", "preview"), mcp.Description("read (default) or preview")),
		mcp.WithString("engine", mcp.Enum("cel", "expr"), mcp.Description("Preview engine (default: cel)")),
		mcp.WithObject("actions", mcp.Description("Preview state: \"item:action\" to first emission time in ms")),
		mcp.WithNumber("now", mcp.Description("Preview clock in ms")),
	)
}

func connectTool() mcp.Tool {
	return mcp.NewTool("wireflow.connect",
		mcp.WithDescription("Draw or remove an edge from an item's output action to another item's condition"),
		mcp.WithString("game_id", mcp.Required(), mcp.Description("Game ID")),
		mcp.WithNumber("from_item", mcp.Required(), mcp.Description("Producer item")),
		mcp.WithString("action", mcp.Required(), mcp.Description("Output action of the producer")),
		mcp.WithNumber("to_item", mcp.Required(), mcp.Description("Consumer item")),
		mcp.WithString("selector", mcp.Enum("dependsOn", "disappearOn"), mcp.Description("Condition field (default: dependsOn)")),
		mcp.WithBoolean("remove", mcp.Description("Remove the edge instead of drawing it")),
	)
}

func combineTool() mcp.Tool {
	return mcp.NewTool("wireflow.combine",
		mcp.WithDescription("Wrap an item's condition in a combinator, or change the type of its root combinator"),
		mcp.WithString("game_id", mcp.Required(), mcp.Description("Game ID")),
		mcp.WithNumber("item_id", mcp.Required(), mcp.Description("Consumer item")),
		mcp.WithString("type", mcp.Required(), mcp.Enum("and", "or", "time"), mcp.Description("Combinator type")),
		mcp.WithNumber("time_delta", mcp.Description("Delay in ms for time")),
		mcp.WithString("selector", mcp.Enum("dependsOn", "disappearOn"), mcp.Description("Condition field (default: dependsOn)")),
	)
}

func renderTool() mcp.Tool {
	return mcp.NewTool("wireflow.render",
		mcp.WithDescription("Draw the dependency diagram of a game. Returns ASCII art, Mermaid syntax, SVG or a PNG image"),
		mcp.WithString("game_id", mcp.Required(), mcp.Description("Game ID")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "svg", "image"),
			mcp.Description("Output format"),
		),
		mcp.WithString("selector", mcp.Enum("dependsOn", "disappearOn"), mcp.Description("Condition field (default: dependsOn)")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("wireflow.query",
		mcp.WithDescription("Run a jq expression over {\"items\": [...]} of a game"),
		mcp.WithString("game_id", mcp.Required(), mcp.Description("Game ID")),
		mcp.WithString("expression", mcp.Required(), mcp.Description("jq expression")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("wireflow.history",
		mcp.WithDescription("List the recorded editor events of a game"),
		mcp.WithString("game_id", mcp.Required(), mcp.Description("Game ID")),
		mcp.WithNumber("since", mcp.Description("Only events with a higher sequence")),
		mcp.WithString("event_type", mcp.Description("Only events of this type")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of events (default: 100)")),
	)
}

func watchTool() mcp.Tool {
	return mcp.NewTool("wireflow.watch",
		mcp.WithDescription("Receive the editor events of a game as notifications on this session"),
		mcp.WithString("game_id", mcp.Required(), mcp.Description("Game ID")),
	)
}
