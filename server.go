package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"docquery/answer"
	"docquery/index"
)

type searcher interface {
	Search(ctx context.Context, query string, k int) ([]index.Result, error)
}

type synthesizer interface {
	Answer(ctx context.Context, question string, hits []index.Result) (answer.Answer, error)
}

type library interface {
	Process(ctx context.Context) (Report, error)
	Clear()
	Status() Status
}

// NewDocQueryServer exposes the pipeline as MCP tools: ask a question
// against the indexed documents, (re)process the document set, report
// status, and clear everything.
func NewDocQueryServer(lib library, search searcher, synth synthesizer, results int) *server.MCPServer {
	srv := server.NewMCPServer("DocQuery", "0.1.0", server.WithToolCapabilities(false))

	ask := mcp.NewTool("ask",
		mcp.WithDescription("Answer a question from the indexed documents, with cited sources"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Natural-language question"),
		))
	srv.AddTool(ask, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := request.RequireString("question")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		hits, err := search.Search(ctx, q, results)
		if err != nil && !errors.Is(err, index.ErrNotReady) {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ans, err := synth.Answer(ctx, q, hits)
		if err != nil {
			var genErr *answer.GenerationError
			if errors.As(err, &genErr) {
				ans = answer.Answer{
					Text:    "The answer could not be generated right now. Please try again.",
					Sources: genErr.Sources,
				}
			} else {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}

		raw, err := json.Marshal(ans)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(raw)), nil
	})

	process := mcp.NewTool("process",
		mcp.WithDescription("Process all documents in the document root and rebuild the index"))
	srv.AddTool(process, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := lib.Process(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("processing failed: %v", err)), nil
		}

		raw, err := json.Marshal(report)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(raw)), nil
	})

	status := mcp.NewTool("status",
		mcp.WithDescription("Report index state, document and chunk counts"))
	srv.AddTool(status, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := json.Marshal(lib.Status())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(raw)), nil
	})

	clear := mcp.NewTool("clear",
		mcp.WithDescription("Drop the index and return to the unprocessed state"))
	srv.AddTool(clear, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lib.Clear()
		return mcp.NewToolResultText("cleared"), nil
	})

	return srv
}
