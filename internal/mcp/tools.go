// Package mcp exposes the run-history store as MCP tools.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gateway-fm/txblast/internal/storage"
)

// RegisterTools registers all run-history tools on the MCP server.
func RegisterTools(s *server.MCPServer, store *storage.SQLiteStore) {
	registerHistory(s, store)
	registerRunDetail(s, store)
	registerDeleteRun(s, store)
	registerRenameRun(s, store)
}

func registerHistory(s *server.MCPServer, store *storage.SQLiteStore) {
	tool := gomcp.NewTool("blast_history",
		gomcp.WithDescription("List completed blast runs with summary metrics (paginated, favorites first)."),
		gomcp.WithNumber("limit",
			gomcp.Description("Max results to return (default: 10, max: 100)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Results offset for pagination (default: 0)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 || limit > 100 {
			limit = 10
		}
		offset := req.GetInt("offset", 0)
		if offset < 0 {
			offset = 0
		}

		page, err := store.ListRuns(ctx, limit, offset)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("History failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatHistory(page)), nil
	})
}

func registerRunDetail(s *server.MCPServer, store *storage.SQLiteStore) {
	tool := gomcp.NewTool("blast_run",
		gomcp.WithDescription("Get detailed results for a specific blast run by ID, including verification and error breakdown."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Run ID"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		run, err := store.GetRun(ctx, id)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Run detail failed: %v", err)), nil
		}
		if run == nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Run not found: %s", id)), nil
		}
		return gomcp.NewToolResultText(formatRunDetail(run)), nil
	})
}

func registerDeleteRun(s *server.MCPServer, store *storage.SQLiteStore) {
	tool := gomcp.NewTool("blast_delete_run",
		gomcp.WithDescription("Delete a blast run from history. This is a MUTATING operation."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Run ID to delete"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		if err := store.DeleteRun(ctx, id); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Delete failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Run Deleted"),
			kv("ID", id),
		)), nil
	})
}

func registerRenameRun(s *server.MCPServer, store *storage.SQLiteStore) {
	tool := gomcp.NewTool("blast_rename_run",
		gomcp.WithDescription("Set a custom name and/or favorite flag on a blast run. This is a MUTATING operation."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Run ID"),
		),
		gomcp.WithString("name",
			gomcp.Description("Custom name for the run"),
		),
		gomcp.WithBoolean("favorite",
			gomcp.Description("Mark (or unmark) the run as a favorite"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}

		update := &storage.RunMetadataUpdate{}
		if name := req.GetString("name", ""); name != "" {
			update.CustomName = &name
		}
		// Presence check so an explicit favorite=false can unfavorite
		if _, ok := req.GetArguments()["favorite"]; ok {
			fav := req.GetBool("favorite", false)
			update.IsFavorite = &fav
		}

		if err := store.UpdateRunMetadata(ctx, id, update); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Update failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Run Updated"),
			kv("ID", id),
		)), nil
	})
}

// Response formatting functions

func formatHistory(page *storage.PaginatedRuns) string {
	lines := joinLines(
		section("Blast History"),
		kv("Total Runs", formatNumber(page.Total)),
		"",
	)

	if len(page.Runs) == 0 {
		lines += "No runs found."
		return lines
	}

	for _, run := range page.Runs {
		title := run.ID
		if run.CustomName != nil && *run.CustomName != "" {
			title = fmt.Sprintf("%s (%s)", *run.CustomName, run.ID)
		}
		if run.IsFavorite {
			title = "* " + title
		}

		lines += fmt.Sprintf("### %s\n", title)
		lines += joinLines(
			kv("Started", run.StartedAt.Format("2006-01-02 15:04:05")),
			kv("TXs Requested", formatNumber(run.TxRequested)),
			kv("TXs Accepted", formatNumber(run.TxAccepted)),
			kv("TXs Confirmed", formatNumber(run.TxConfirmed)),
			kv("Wall-Clock TPS", formatTPS(run.WallClockTPS)),
		)
		lines += "\n\n"
	}

	return lines
}

func formatRunDetail(run *storage.StoredRun) string {
	duration := "n/a"
	if run.CompletedAt != nil {
		duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
	}

	lines := joinLines(
		section("Blast Run: "+run.ID),
		kv("RPC URL", run.RPCURL),
		kv("Chain ID", run.ChainID),
		kv("Started", run.StartedAt.Format("2006-01-02 15:04:05")),
		kv("Duration", duration),
		kv("Concurrency", formatNumber(run.Concurrency)),
		kv("Senders Funded", fmt.Sprintf("%d / %d", run.SendersFunded, run.SendersRequested)),
		kv("TXs Requested", formatNumber(run.TxRequested)),
		kv("TXs Signed", formatNumber(run.TxSigned)),
		kv("TXs Accepted", formatNumber(run.TxAccepted)),
		kv("TXs Failed", formatNumber(run.TxFailed)),
		kv("TXs Confirmed", formatNumber(run.TxConfirmed)),
		kv("Broadcast Time", fmt.Sprintf("%.2fs", run.BroadcastSeconds)),
	)

	if run.Mix != nil {
		lines += "\n\n" + joinLines(
			section("Mix"),
			kv("Transfer", fmt.Sprintf("%d%%", run.Mix.Transfer)),
			kv("Token Transfer", fmt.Sprintf("%d%%", run.Mix.TokenTransfer)),
			kv("Swap", fmt.Sprintf("%d%%", run.Mix.Swap)),
		)
	}

	if v := run.Verify; v != nil {
		lines += "\n\n" + joinLines(
			section("Verification"),
			kv("Included", formatNumber(v.Included)),
			kv("Confirmed", formatNumber(v.Confirmed)),
			kv("Reverted", formatNumber(v.Reverted)),
			kv("Missing", formatNumber(v.Missing)),
			kv("Sample", fmt.Sprintf("%d / %d passed", v.SamplePassed, v.SampleChecked)),
			kv("Full Verify", v.FullyVerified),
			kv("Block TPS", formatTPS(v.BlockTPS.ConfirmedTPS)),
			kv("Wall-Clock TPS", formatTPS(v.WallClockTPS.ConfirmedTPS)),
		)
		if len(v.Mismatches) > 0 {
			lines += "\n\n" + section("Mismatches")
			for reason, count := range v.Mismatches {
				lines += "\n" + kv(string(reason), formatNumber(count))
			}
		}
	}

	if len(run.ErrorCounts) > 0 {
		lines += "\n\n" + section("Broadcast Errors")
		for class, count := range run.ErrorCounts {
			lines += "\n" + kv(string(class), formatNumber(count))
		}
	}

	if len(run.Warnings) > 0 {
		lines += "\n\n" + section("Warnings")
		for _, warning := range run.Warnings {
			lines += "\n  - " + warning
		}
	}

	return lines
}
