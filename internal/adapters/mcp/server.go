package mcpadapter

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opencouncil/meeting-search/internal/core/usecase"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

func searchToolDef(name, corpus string) mcp.Tool {
	return mcp.NewTool(name,
		mcp.WithDescription("Full-text plus semantic search over "+corpus+" from municipal council meetings."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search terms or a natural-language phrase."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results to return (default 5)."),
		),
	)
}

var attributionToolDef = mcp.NewTool(usecase.ToolAttributionByPerson,
	mcp.WithDescription("Statements and transcript segments attributed to a named person."),
	mcp.WithString("name",
		mcp.Required(),
		mcp.Description("The person's name as recorded in meeting minutes."),
	),
)

var votingToolDef = mcp.NewTool(usecase.ToolVotingRecord,
	mcp.WithDescription("Recorded votes on council motions matching a subject."),
	mcp.WithString("subject",
		mcp.Required(),
		mcp.Description("Motion subject or topic to match."),
	),
)

var currentDateToolDef = mcp.NewTool(usecase.ToolCurrentDate,
	mcp.WithDescription("Today's date, for resolving relative time references."),
)

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	usecase.ToolSearchMotions: {
		def:     searchToolDef(usecase.ToolSearchMotions, "formal council motions"),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.searchHandler(usecase.ToolSearchMotions) },
	},
	usecase.ToolSearchKeyStatements: {
		def:     searchToolDef(usecase.ToolSearchKeyStatements, "extracted key statements"),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.searchHandler(usecase.ToolSearchKeyStatements) },
	},
	usecase.ToolSearchDocumentSections: {
		def:     searchToolDef(usecase.ToolSearchDocumentSections, "agenda and report document sections"),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.searchHandler(usecase.ToolSearchDocumentSections) },
	},
	usecase.ToolSearchTranscripts: {
		def:     searchToolDef(usecase.ToolSearchTranscripts, "speech transcript segments"),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.searchHandler(usecase.ToolSearchTranscripts) },
	},
	usecase.ToolAttributionByPerson: {
		def:     attributionToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAttribution },
	},
	usecase.ToolVotingRecord: {
		def:     votingToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleVotingRecord },
	},
	usecase.ToolCurrentDate: {
		def:     currentDateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCurrentDate },
	},
}

// AllToolNames returns every registered tool name.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// NewServer builds an MCP server exposing the meeting-search tools.
func NewServer(tools *usecase.ToolRegistry, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"meeting-search",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(tools)
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run serves the tool set over stdio.
func Run(tools *usecase.ToolRegistry, version string) error {
	return server.ServeStdio(NewServer(tools, version))
}
