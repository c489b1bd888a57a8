// Package mcp exposes the dialog engine as a Model Context Protocol server, so an
// agent can hold a conversation with the flows through tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/output"
	"github.com/aretw0/parley/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

const flowsURI = "parley://flows"

// TurnResponse is the structured result of the conversational tools.
type TurnResponse struct {
	Messages []domain.Message `json:"messages" jsonschema_description:"Messages produced by the turn, in order"`
	State    domain.State     `json:"state,omitempty" jsonschema_description:"Session state after the turn; absent when the flow ended"`
	Position domain.Position  `json:"position" jsonschema_description:"Flow and node the session waits at"`
	Ended    bool             `json:"ended" jsonschema_description:"Indicates the flow ended during the turn"`
}

// Engine defines the interface required by the MCP server to interact with Parley.
type Engine interface {
	ProcessMessage(ctx context.Context, sessionID string, event domain.Event) domain.State
	JumpTo(ctx context.Context, sessionID, flowID, nodeID string, opts parley.JumpOptions) error
	EndFlow(ctx context.Context, sessionID string) (domain.State, error)
	CurrentPosition(ctx context.Context, sessionID string) (domain.Position, error)
	Flows(ctx context.Context) ([]domain.Flow, error)
	RegisterOutputProcessor(p output.Processor)
}

// Server wraps the Parley Engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	sessions  *session.Manager
	turns     *session.Collector
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance and registers it as the engine's output processor.
func NewServer(engine Engine, sessions *session.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		engine:    engine,
		sessions:  sessions,
		turns:     session.NewCollector(),
		mcpServer: server.NewMCPServer("parley-mcp", strings.TrimSpace(parley.Version)),
		logger:    logger,
	}
	engine.RegisterOutputProcessor(s.turns)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, e.g. to mount it on a custom transport.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops it when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	sessionArg := mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session ID"))

	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a user message to a session and get the messages the flow replies with."),
		sessionArg,
		mcp.WithString("text", mcp.Required(), mcp.Description("Message text")),
		mcp.WithOutputSchema[TurnResponse](),
	), mcp.NewStructuredToolHandler(s.handleSendMessage))

	s.mcpServer.AddTool(mcp.NewTool("send_timeout",
		mcp.WithDescription("Signal that the user went idle; the flow's timeout handling runs."),
		sessionArg,
		mcp.WithOutputSchema[TurnResponse](),
	), mcp.NewStructuredToolHandler(s.handleSendTimeout))

	s.mcpServer.AddTool(mcp.NewTool("jump_to",
		mcp.WithDescription("Move a session to a flow (and optionally a node). The next message enters it."),
		sessionArg,
		mcp.WithString("flow", mcp.Required(), mcp.Description("Flow ID, e.g. main.flow")),
		mcp.WithString("node", mcp.Description("Node ID (default: the flow's start node)")),
		mcp.WithBoolean("reset_state", mcp.Description("Clear the session state")),
	), s.handleJumpTo)

	s.mcpServer.AddTool(mcp.NewTool("end_flow",
		mcp.WithDescription("End the active flow of a session."),
		sessionArg,
	), s.handleEndFlow)

	s.mcpServer.AddTool(mcp.NewTool("get_position",
		mcp.WithDescription("Get the flow and node a session waits at."),
		sessionArg,
	), s.handleGetPosition)

	s.mcpServer.AddTool(mcp.NewTool("list_flows",
		mcp.WithDescription("Get every flow definition for introspection."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := s.flowsJSON(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	})
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (TurnResponse, error) {
	sessionID, _ := args["session_id"].(string)
	text, _ := args["text"].(string)

	clean, err := session.SanitizeInput(text)
	if err != nil {
		s.logger.Warn("MCP send_message: Input rejected", "err", err, "size", len(text))
		return TurnResponse{}, fmt.Errorf("input rejected: %w", err)
	}
	return s.turn(ctx, sessionID, domain.Event{Type: domain.EventText, Text: clean})
}

func (s *Server) handleSendTimeout(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (TurnResponse, error) {
	sessionID, _ := args["session_id"].(string)
	return s.turn(ctx, sessionID, domain.Event{Type: domain.EventTimeout})
}

func (s *Server) turn(ctx context.Context, sessionID string, event domain.Event) (TurnResponse, error) {
	if sessionID == "" {
		return TurnResponse{}, fmt.Errorf("session_id is required")
	}

	var resp TurnResponse
	err := s.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		resp.Messages = s.turns.Capture(sessionID, func() {
			resp.State = s.engine.ProcessMessage(ctx, sessionID, event)
		})
		resp.Ended = resp.State == nil
		if resp.Ended {
			return nil
		}
		pos, err := s.engine.CurrentPosition(ctx, sessionID)
		resp.Position = pos
		return err
	})
	if err != nil {
		return TurnResponse{}, fmt.Errorf("turn failed: %w", err)
	}
	return resp, nil
}

func (s *Server) handleJumpTo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	flowID := request.GetString("flow", "")
	nodeID := request.GetString("node", "")
	opts := parley.JumpOptions{ResetState: request.GetBool("reset_state", false)}

	err := s.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return s.engine.JumpTo(ctx, sessionID, flowID, nodeID, opts)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("jump failed: %v", err)), nil
	}
	return s.handleGetPosition(ctx, request)
}

func (s *Server) handleEndFlow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	err := s.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		_, err := s.engine.EndFlow(ctx, sessionID)
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("end failed: %v", err)), nil
	}
	return mcp.NewToolResultText("ended"), nil
}

func (s *Server) handleGetPosition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pos, err := s.engine.CurrentPosition(ctx, request.GetString("session_id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("position failed: %v", err)), nil
	}
	data, _ := json.Marshal(pos)
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) flowsJSON(ctx context.Context) (string, error) {
	flows, err := s.engine.Flows(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load flows: %w", err)
	}
	data, err := json.Marshal(flows)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(flowsURI, "Flow Definitions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		text, err := s.flowsJSON(ctx)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      flowsURI,
				MIMEType: "application/json",
				Text:     text,
			},
		}, nil
	})
}
