package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ostanin/pdeck/internal/prompt"
	"github.com/ostanin/pdeck/internal/syncer"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service *syncer.Service
	Version string
}

// NewMCPServer creates an MCP server exposing the prompt library as tools
// and resources, so assistants can search and reuse prompts directly.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"pdeck",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("pdeck — local mirror of a shared prompt library. Search it before writing a prompt from scratch."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_prompts",
			mcp.WithDescription("Search the prompt library by keyword across title, content, description and tags."),
			mcp.WithString("keyword", mcp.Description("Search keyword; empty lists everything")),
			mcp.WithString("category", mcp.Description("Restrict to one category")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearchPrompts(deps),
	)

	s.AddTool(
		mcp.NewTool("get_prompt",
			mcp.WithDescription("Fetch one prompt by its record id, including full content and variables."),
			mcp.WithString("id", mcp.Description("Prompt record id"), mcp.Required()),
		),
		mcpGetPrompt(deps),
	)

	s.AddTool(
		mcp.NewTool("create_prompt",
			mcp.WithDescription("Add a new prompt to the shared library."),
			mcp.WithString("title", mcp.Description("Prompt title")),
			mcp.WithString("content", mcp.Description("Prompt body; {{name}} placeholders become variables"), mcp.Required()),
			mcp.WithString("description", mcp.Description("What the prompt is for")),
			mcp.WithString("category", mcp.Description("Category name")),
			mcp.WithArray("tags", mcp.Description("Optional tags")),
		),
		mcpCreatePrompt(deps),
	)

	s.AddTool(
		mcp.NewTool("refresh_prompts",
			mcp.WithDescription("Force a full re-sync of the prompt library from the remote table."),
		),
		mcpRefreshPrompts(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"pdeck://info",
			"Library Info",
			mcp.WithResourceDescription("Snapshot size and sync timestamps as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceInfo(deps),
	)

	return s
}

func mcpSearchPrompts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keyword := req.GetString("keyword", "")
		category := req.GetString("category", "")

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		resp, err := deps.Service.SearchPrompts(ctx, keyword, prompt.Filter{Category: category})
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		items := resp.Items
		if len(items) > limit {
			items = items[:limit]
		}

		// Trim to the fields an assistant needs to pick a prompt.
		type hit struct {
			ID          string   `json:"id"`
			Title       string   `json:"title"`
			Description string   `json:"description,omitempty"`
			Category    string   `json:"category,omitempty"`
			Tags        []string `json:"tags,omitempty"`
		}
		hits := make([]hit, len(items))
		for i, it := range items {
			hits[i] = hit{ID: it.ID, Title: it.Title, Description: it.Description, Category: it.Category, Tags: it.Tags}
		}

		b, err := json.Marshal(hits)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetPrompt(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		rec, err := deps.Service.GetPromptByID(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("get failed: %v", err)), nil
		}

		b, err := json.Marshal(rec)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal prompt: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCreatePrompt(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		rec, err := deps.Service.CreatePrompt(ctx, syncer.PromptInput{
			Title:       req.GetString("title", ""),
			Content:     content,
			Description: req.GetString("description", ""),
			Category:    req.GetString("category", ""),
			Tags:        req.GetStringSlice("tags", nil),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("create failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Created prompt %s", rec.ID)), nil
	}
}

func mcpRefreshPrompts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := deps.Service.Refresh(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("refresh failed: %v", err)), nil
		}
		if result.Truncated {
			return mcpText(fmt.Sprintf("Refreshed %d prompts (remote has more; fetch was capped)", result.Count)), nil
		}
		return mcpText(fmt.Sprintf("Refreshed %d prompts", result.Count)), nil
	}
}

func mcpResourceInfo(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		info, err := deps.Service.SnapshotInfo()
		if err != nil {
			return nil, fmt.Errorf("failed to get snapshot info: %w", err)
		}

		b, err := json.Marshal(info)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal info: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
