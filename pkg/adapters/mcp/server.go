// Package mcp exposes the triage engine as a Model Context Protocol server.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/triage"
	"github.com/aretw0/triage/internal/logging"
	"github.com/aretw0/triage/internal/presentation/graph"
	"github.com/aretw0/triage/pkg/domain"
	"github.com/aretw0/triage/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const graphURI = "triage://graph"

// ConsultArgs are the arguments of the consult tool.
type ConsultArgs struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ConsultResponse is the structured result of the consult tool.
type ConsultResponse struct {
	SessionID string   `json:"session_id" jsonschema_description:"Session to pass back for follow-up messages"`
	Response  string   `json:"response" jsonschema_description:"Reply of the last handler"`
	Sender    string   `json:"sender" jsonschema_description:"Handler that produced the reply"`
	Decision  string   `json:"decision" jsonschema_description:"Final routing decision"`
	Path      []string `json:"path" jsonschema_description:"Handlers visited in order"`
	Notice    string   `json:"notice,omitempty" jsonschema_description:"Safety notice for sensitive conversations"`
}

// Server wraps the engine and exposes it as an MCP Server.
type Server struct {
	engine    ports.Engine
	sessions  ports.SessionReader
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithSessions enables the get_session tool.
func WithSessions(r ports.SessionReader) Option {
	return func(s *Server) { s.sessions = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a new MCP Server instance.
func NewServer(engine ports.Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("triage-mcp", strings.TrimSpace(triage.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://localhost" + addr
	if !strings.HasPrefix(addr, ":") {
		baseURL = "http://" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
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
	// TOOL: consult
	consultTool := mcp.NewTool("consult",
		mcp.WithDescription("Send a patient message to the triage team (GP, internal specialist, psychologist) and get the reply."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The patient's message")),
		mcp.WithString("session_id", mcp.Description("Session to continue; omit to start a new one")),
		mcp.WithOutputSchema[ConsultResponse](),
	)
	s.mcpServer.AddTool(consultTool, mcp.NewStructuredToolHandler(s.handleConsult))

	// TOOL: get_graph
	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the workflow graph for introspection."),
		mcp.WithString("format", mcp.Description("json (default) or mermaid"), mcp.Enum("json", "mermaid")),
	), s.handleGetGraph)

	if s.sessions != nil {
		// TOOL: get_session
		s.mcpServer.AddTool(mcp.NewTool("get_session",
			mcp.WithDescription("Get the stored conversation of a session."),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		), s.handleGetSession)
	}
}

func (s *Server) handleConsult(ctx context.Context, _ mcp.CallToolRequest, args ConsultArgs) (ConsultResponse, error) {
	out, err := s.engine.Handle(ctx, domain.Inbound{SessionID: args.SessionID, Message: args.Message})
	if err != nil {
		s.logger.Warn("MCP consult failed", "error", err, "session_id", args.SessionID)
		return ConsultResponse{}, fmt.Errorf("consult failed: %w", err)
	}

	resp := ConsultResponse{
		SessionID: out.SessionID,
		Response:  out.Reply,
		Sender:    out.Sender,
		Decision:  out.Decision.String(),
		Path:      out.Path,
		Notice:    out.Notice,
	}
	return resp, nil
}

func (s *Server) handleGetGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	desc := s.engine.Inspect()
	if request.GetString("format", "json") == "mermaid" {
		return mcp.NewToolResultText(graph.GenerateMermaid(desc, nil)), nil
	}
	jsonBytes, err := json.Marshal(desc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.sessions.Session(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session %s: %v", id, err)), nil
	}
	jsonBytes, err := json.Marshal(sess)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) registerResources() {
	// EXPOSE: triage://graph
	s.mcpServer.AddResource(mcp.NewResource(graphURI, "Workflow Graph",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.engine.Inspect())
		if err != nil {
			return nil, fmt.Errorf("failed to encode graph: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      graphURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
