package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/prisma/models"
)

func registerTools(s *server.MCPServer, c *apiClient) {
	scrapeTool := mcp.NewTool("scrape_urls",
		mcp.WithDescription("Scrape web pages with a headless browser and return each page as Markdown. JavaScript-heavy pages are rendered before extraction."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("List of URLs to scrape"),
		),
		mcp.WithBoolean("concurrent",
			mcp.Description("Scrape several pages at once instead of one after another"),
		),
	)
	s.AddTool(scrapeTool, handleScrapeURLs(c))

	researchTool := mcp.NewTool("research_report",
		mcp.WithDescription("Scrape the given sources and write a Markdown research report from them with a local language model."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("Source URLs for the report"),
		),
		mcp.WithString("topic",
			mcp.Required(),
			mcp.Description("Research topic used for the report title and prompt"),
		),
		mcp.WithBoolean("concurrent",
			mcp.Description("Scrape several pages at once"),
		),
	)
	s.AddTool(researchTool, handleResearchReport(c))
}

func handleScrapeURLs(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil || len(urls) == 0 {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}

		resp, err := c.scrape(ctx, models.ScrapeRequest{
			URLs:       urls,
			Concurrent: request.GetBool("concurrent", false),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("scrape failed: %v", err)), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(formatResults(resp.Results)), nil
		}
		return mcp.NewToolResultText(formatResults(resp.Results)), nil
	}
}

func handleResearchReport(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil || len(urls) == 0 {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}
		topic, err := request.RequireString("topic")
		if err != nil {
			return mcp.NewToolResultError("topic is required"), nil
		}

		status, err := c.research(ctx, models.ResearchRequest{
			URLs:       urls,
			Topic:      topic,
			Concurrent: request.GetBool("concurrent", false),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("research failed: %v", err)), nil
		}
		if status.Error != nil && status.Summary == nil {
			return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", status.Error.Code, status.Error.Message)), nil
		}

		run := status.Summary
		if run == nil || run.Analysis == nil {
			return mcp.NewToolResultError("no page produced content; nothing to analyze\n\n" + formatResults(summaryResults(run))), nil
		}
		if !run.Analysis.Success {
			return mcp.NewToolResultError(fmt.Sprintf("report failed [%s]: %s", run.Analysis.ErrorCode, run.Analysis.Error)), nil
		}

		var sb strings.Builder
		sb.WriteString(run.Analysis.Summary)
		fmt.Fprintf(&sb, "\n\n---\nSources: %d/%d scraped", run.Succeeded, run.Total)
		if run.Analysis.TokensUsed > 0 {
			fmt.Fprintf(&sb, " | Tokens: %d", run.Analysis.TokensUsed)
		}
		if run.ReportPath != "" {
			fmt.Fprintf(&sb, " | Saved: %s", run.ReportPath)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func summaryResults(run *models.RunSummary) []models.ScrapeResult {
	if run == nil {
		return nil
	}
	return run.Results
}

func formatResults(results []models.ScrapeResult) string {
	var sb strings.Builder
	for i, r := range results {
		if r.Success {
			fmt.Fprintf(&sb, "--- [%d] %s ---\n%s\n\n", i+1, r.Title, r.Markdown)
		} else {
			fmt.Fprintf(&sb, "--- [%d] FAILED: %s: %s ---\n\n", i+1, r.URL, r.Error)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
