package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ostanin/pdeck/internal/capture"
	"github.com/ostanin/pdeck/internal/config"
)

type promptView struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Variables   []struct {
		Name string `json:"name"`
	} `json:"variables"`
	UsageCount int `json:"usage_count"`
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search [keyword]",
	Short: "Search the prompt library",
	Long: `Search the prompt library by keyword across title, content, description
and tags.

Examples:
  pdeck search review
  pdeck search --category coding --tag golang
  pdeck search review --sort usage_count --limit 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		keyword := strings.Join(args, " ")
		category, _ := cmd.Flags().GetString("category")
		tagsStr, _ := cmd.Flags().GetString("tag")
		sortBy, _ := cmd.Flags().GetString("sort")
		limit, _ := cmd.Flags().GetInt("limit")
		force, _ := cmd.Flags().GetBool("refresh")

		filter := map[string]any{"keyword": keyword, "category": category}
		if tagsStr != "" {
			filter["tags"] = splitTags(tagsStr)
		}
		req := map[string]any{
			"filter":        filter,
			"page":          1,
			"page_size":     limit,
			"force_refresh": force,
		}
		if sortBy != "" {
			req["sort_by"] = sortBy
			req["sort_order"] = "desc"
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/prompts/search", req)
		if err != nil {
			return err
		}

		var result struct {
			Items      []promptView `json:"items"`
			Pagination struct {
				Total int `json:"total"`
			} `json:"pagination"`
			ServedFrom string `json:"served_from"`
		}
		if err := decodeData(resp, &result); err != nil {
			return err
		}

		if len(result.Items) == 0 {
			fmt.Println("No prompts found.")
			return nil
		}

		for _, p := range result.Items {
			title := p.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %s", colorize(colorCyan, p.ID), colorize(colorBold, title))
			if p.Category != "" {
				fmt.Printf("  [%s]", p.Category)
			}
			if len(p.Tags) > 0 {
				fmt.Printf("  %s", strings.Join(p.Tags, ","))
			}
			fmt.Println()
			if p.Description != "" {
				fmt.Printf("    %s\n", truncate(p.Description, 100))
			}
		}
		fmt.Printf("\n%d of %d prompts (from %s)\n", len(result.Items), result.Pagination.Total, result.ServedFrom)
		return nil
	},
}

func init() {
	searchCmd.Flags().String("category", "", "restrict to one category")
	searchCmd.Flags().String("tag", "", "comma-separated tags (all must match)")
	searchCmd.Flags().String("sort", "", "sort field (usage_count, favorite_count, created_at, updated_at, title)")
	searchCmd.Flags().Int("limit", 20, "maximum number of results")
	searchCmd.Flags().Bool("refresh", false, "bypass caches and fetch from the remote")
}

// --- get ---

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one prompt in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/prompts/"+args[0])
		if err != nil {
			return err
		}

		if asJSON {
			var raw any
			if err := decodeData(resp, &raw); err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(raw)
		}

		var p promptView
		if err := decodeData(resp, &p); err != nil {
			return err
		}

		fmt.Println(colorize(colorBold, p.Title))
		if p.Description != "" {
			fmt.Println(p.Description)
		}
		if len(p.Variables) > 0 {
			names := make([]string, len(p.Variables))
			for i, v := range p.Variables {
				names[i] = "{{" + v.Name + "}}"
			}
			fmt.Printf("Variables: %s\n", strings.Join(names, " "))
		}
		fmt.Println()
		fmt.Println(p.Content)
		return nil
	},
}

func init() {
	getCmd.Flags().Bool("json", false, "print the raw record as JSON")
}

// --- create ---

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Add a prompt to the shared library",
	Long: `Add a prompt to the shared library.

Examples:
  pdeck create --title "Code review" --content "Review this {{language}} code"
  pdeck create --title "Spec template" --file ./spec-prompt.md --tags writing,spec`,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		content, _ := cmd.Flags().GetString("content")
		file, _ := cmd.Flags().GetString("file")
		description, _ := cmd.Flags().GetString("description")
		category, _ := cmd.Flags().GetString("category")
		tagsStr, _ := cmd.Flags().GetString("tags")
		public, _ := cmd.Flags().GetBool("public")

		if content == "" && file == "" {
			return fmt.Errorf("one of --content or --file is required")
		}
		if file != "" {
			extracted, err := capture.ExtractFile(file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", file, err)
			}
			content = extracted
		}

		req := map[string]any{
			"title":       title,
			"content":     content,
			"description": description,
			"category":    category,
			"is_public":   public,
		}
		if tagsStr != "" {
			req["tags"] = splitTags(tagsStr)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/prompts", req)
		if err != nil {
			return err
		}

		var created promptView
		if err := decodeData(resp, &created); err != nil {
			return err
		}

		printSuccess("Created prompt %s", created.ID)
		for _, v := range created.Variables {
			printStatus("Variable", "{{%s}}", v.Name)
		}
		return nil
	},
}

func init() {
	createCmd.Flags().String("title", "", "prompt title")
	createCmd.Flags().String("content", "", "prompt body; {{name}} placeholders become variables")
	createCmd.Flags().String("file", "", "read the body from a .txt, .md or .pdf file")
	createCmd.Flags().String("description", "", "what the prompt is for")
	createCmd.Flags().String("category", "", "category name")
	createCmd.Flags().String("tags", "", "comma-separated tags")
	createCmd.Flags().Bool("public", false, "mark the prompt public")
}

// --- refresh ---

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a full re-sync from the remote table",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/refresh", nil)
		if err != nil {
			return err
		}

		var result struct {
			Count     int  `json:"count"`
			Truncated bool `json:"truncated"`
		}
		if err := decodeData(resp, &result); err != nil {
			return err
		}

		printSuccess("Refreshed %d prompts", result.Count)
		if result.Truncated {
			printWarning("The remote table has more records than the fetch cap; the mirror is incomplete.")
		}
		return nil
	},
}

// --- info ---

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show local mirror state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/snapshot")
		if err != nil {
			return err
		}

		var result struct {
			Snapshot struct {
				Count       int    `json:"count"`
				LastUpdated string `json:"last_updated"`
				LastRefresh string `json:"last_refresh"`
			} `json:"snapshot"`
			AutoRefresh struct {
				Enabled         bool `json:"enabled"`
				IntervalMinutes int  `json:"interval_minutes"`
			} `json:"auto_refresh"`
		}
		if err := decodeData(resp, &result); err != nil {
			return err
		}

		printStatus("Prompts", "%d", result.Snapshot.Count)
		printStatus("Last updated", "%s", orNever(result.Snapshot.LastUpdated))
		printStatus("Last refresh", "%s", orNever(result.Snapshot.LastRefresh))
		if result.AutoRefresh.Enabled {
			printStatus("Auto refresh", "every %d minutes", result.AutoRefresh.IntervalMinutes)
		} else {
			printStatus("Auto refresh", "off")
		}
		return nil
	},
}

// --- clear ---

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear local cached data",
}

var clearCacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Clear the ephemeral query cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/cache")
		if err != nil {
			return err
		}
		if err := decodeData(resp, nil); err != nil {
			return err
		}
		printSuccess("Query cache cleared")
		return nil
	},
}

var clearSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Delete the local prompt snapshot (remote data is untouched)",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This deletes the local mirror. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/snapshot")
		if err != nil {
			return err
		}
		if err := decodeData(resp, nil); err != nil {
			return err
		}
		printSuccess("Local snapshot cleared")
		return nil
	},
}

func init() {
	clearSnapshotCmd.Flags().Bool("confirm", false, "confirm snapshot deletion")
	clearCmd.AddCommand(clearCacheCmd)
	clearCmd.AddCommand(clearSnapshotCmd)
}

// --- autorefresh ---

var autoRefreshCmd = &cobra.Command{
	Use:   "autorefresh <on|off>",
	Short: "Enable or disable periodic background refresh",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[0] {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			return fmt.Errorf("argument must be on or off, got %q", args[0])
		}
		interval, _ := cmd.Flags().GetInt("interval")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/settings/auto-refresh",
			map[string]any{"enabled": enabled, "interval_minutes": interval})
		if err != nil {
			return err
		}

		var result struct {
			Enabled         bool `json:"enabled"`
			IntervalMinutes int  `json:"interval_minutes"`
		}
		if err := decodeData(resp, &result); err != nil {
			return err
		}

		if result.Enabled {
			printSuccess("Auto refresh on, every %d minutes", result.IntervalMinutes)
			if interval != 0 && result.IntervalMinutes != interval {
				printWarning("Interval adjusted to the allowed range (5–1440 minutes)")
			}
		} else {
			printSuccess("Auto refresh off")
		}
		return nil
	},
}

func init() {
	autoRefreshCmd.Flags().Int("interval", 60, "refresh interval in minutes")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func splitTags(s string) []string {
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func orNever(s string) string {
	if s == "" || strings.HasPrefix(s, "0001-01-01") {
		return "never"
	}
	return s
}
