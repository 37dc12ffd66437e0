// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes read-only VIRT registry tools for LLM integration via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/virt/internal/names"
	"github.com/starford/virt/internal/registrar"
	"github.com/starford/virt/internal/resolver"
)

// maxResolvedText caps the document text returned by resolve_name.
const maxResolvedText = 32 << 10

// Registry is the read side of the registrar.
type Registry interface {
	Check(ctx context.Context, label, tag string) (*registrar.Availability, error)
	Lookup(ctx context.Context, label, tag string) (*registrar.LookupResult, error)
	Search(ctx context.Context, query string, limit int) ([]registrar.SearchHit, error)
}

// Server wraps the MCP server with VIRT tools.
type Server struct {
	mcp *server.MCPServer
	reg Registry
	res *resolver.Resolver
}

// New creates a new MCP server with all VIRT tools registered. res may be
// nil, in which case resolve_name is not offered.
func New(reg Registry, res *resolver.Resolver, version string) *Server {
	s := &Server{reg: reg, res: res}

	s.mcp = server.NewMCPServer(
		"VIRT",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("check_name",
		mcp.WithDescription("Check whether label.tag is still available for registration."),
		mcp.WithString("label", mcp.Required(), mcp.Description("Label, e.g. my-app")),
		mcp.WithString("tag", mcp.Required(), mcp.Description("One of vc, biz, org, lit")),
	), s.checkName)

	s.mcp.AddTool(mcp.NewTool("lookup_name",
		mcp.WithDescription("Look up a registered name and return its target, raw base and metadata."),
		mcp.WithString("label", mcp.Required(), mcp.Description("Label, e.g. my-app")),
		mcp.WithString("tag", mcp.Required(), mcp.Description("One of vc, biz, org, lit")),
	), s.lookupName)

	s.mcp.AddTool(mcp.NewTool("search_names",
		mcp.WithDescription("Weighted search over titles, keywords, descriptions and site text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum results, at most 20")),
	), s.searchNames)

	if res != nil {
		s.mcp.AddTool(mcp.NewTool("resolve_name",
			mcp.WithDescription("Resolve a virt:// name or https URL and return the outcome and document text."),
			mcp.WithString("name", mcp.Required(), mcp.Description("For example virt://my-app.vc/README.md")),
		), s.resolveName)
	}

	s.mcp.AddTool(mcp.NewTool("get_naming_rules",
		mcp.WithDescription("Returns the VIRT naming rules. Call this before suggesting names."),
	), s.getNamingRules)

	s.mcp.AddResource(
		mcp.NewResource(NamingRulesURI, "VIRT Naming Rules",
			mcp.WithResourceDescription("Which labels, tags and targets the registry accepts."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNamingRulesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func labelAndTag(req mcp.CallToolRequest) (string, string, error) {
	label, err := req.RequireString("label")
	if err != nil {
		return "", "", err
	}
	tag, err := req.RequireString("tag")
	if err != nil {
		return "", "", err
	}
	return label, tag, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) checkName(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	label, tag, err := labelAndTag(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	av, err := s.reg.Check(ctx, label, tag)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(av), nil
}

func (s *Server) lookupName(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	label, tag, err := labelAndTag(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lr, err := s.reg.Lookup(ctx, label, tag)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(lr), nil
}

func (s *Server) searchNames(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.reg.Search(ctx, query, req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("no names found"), nil
	}
	return jsonResult(hits), nil
}

type resolveSummary struct {
	Name        string `json:"name"`
	State       string `json:"state"`
	Outcome     string `json:"outcome"`
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Source      string `json:"source,omitempty"`
	Error       string `json:"error,omitempty"`
	Text        string `json:"text,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
}

func (s *Server) resolveName(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !strings.Contains(name, "://") {
		name = names.Scheme + name
	}

	res := s.res.Resolve(ctx, name)
	sum := resolveSummary{
		Name:        res.Name,
		State:       res.State.String(),
		Outcome:     res.Outcome.String(),
		Status:      res.Status,
		ContentType: res.ContentType,
		Source:      res.Source,
	}
	if res.Err != nil {
		sum.Error = res.Err.Error()
	}
	if utf8.Valid(res.Body) {
		body := res.Body
		if len(body) > maxResolvedText {
			body, sum.Truncated = body[:maxResolvedText], true
		}
		sum.Text = string(body)
	} else {
		sum.Text = fmt.Sprintf("(%d bytes of binary content)", len(res.Body))
	}
	if res.Outcome == resolver.Denied {
		return mcp.NewToolResultError(sum.Error), nil
	}
	return jsonResult(sum), nil
}

func (s *Server) getNamingRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NamingRules), nil
}

func (s *Server) readNamingRulesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      NamingRulesURI,
			MIMEType: "text/markdown",
			Text:     NamingRules,
		},
	}, nil
}
