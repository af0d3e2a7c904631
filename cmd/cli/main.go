package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/newsroom-engine/internal/agent/discovery"
	"github.com/newsroom-engine/internal/agent/pipeline"
	"github.com/newsroom-engine/internal/app"
	"github.com/newsroom-engine/internal/apperr"
	"github.com/newsroom-engine/internal/audit"
	"github.com/newsroom-engine/internal/config"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/internal/storage"
	"github.com/newsroom-engine/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	engine  *app.App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "newsroom",
		Short: "Topic discovery and editorial pipeline",
		Long: `Discovers trending subjects, deduplicates them into topics and moves
each topic through approval, collection, drafting, review and publishing.`,
		PersistentPreRunE:  initializeApp,
		PersistentPostRunE: closeApp,
		SilenceUsage:       true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")

	rootCmd.AddCommand(discoverCmd())
	rootCmd.AddCommand(topicsCmd())
	rootCmd.AddCommand(pipelineCmd())
	rootCmd.AddCommand(articlesCmd())
	rootCmd.AddCommand(logsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if engine != nil {
		_ = engine.Close()
	}
	if err != nil {
		os.Exit(apperr.ExitCode(err))
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	engine, err = app.Open(cmd.Context(), cfg, log)
	return err
}

func closeApp(cmd *cobra.Command, args []string) error {
	if engine == nil {
		return nil
	}
	err := engine.Close()
	engine = nil
	return err
}

func parseID(arg, what string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid %s id %q", what, arg)
	}
	return uint(id), nil
}

func printResult(res *pipeline.StageResult) {
	fmt.Printf("Stage:   %s\n", res.Stage)
	fmt.Printf("Topic:   %d (%s -> %s)\n", res.TopicID, res.From, res.To)
	if res.ArticleID != 0 {
		fmt.Printf("Article: %d\n", res.ArticleID)
	}
	if res.Message != "" {
		fmt.Printf("Result:  %s\n", res.Message)
	}
	if len(res.Counts) > 0 {
		fmt.Printf("Counts:  %s\n", formatCounts(res.Counts))
	}
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}

// ============ DISCOVER COMMANDS ============

func discoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Topic discovery commands",
	}

	cmd.AddCommand(discoverRunCmd())
	return cmd
}

func discoverRunCmd() *cobra.Command {
	var sourceName string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run topic discovery",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var result *discovery.Result
			var err error
			if sourceName != "" {
				result, err = engine.Discovery.RunForSource(ctx, sourceName)
			} else {
				result, err = engine.Discovery.Run(ctx)
			}
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Discovery Results ===\n")
			fmt.Printf("Items Fetched:      %d\n", result.Fetched)
			fmt.Printf("Duplicates Skipped: %d\n", result.DuplicatesSkipped)
			fmt.Printf("Invalid Items:      %d\n", result.Invalid)
			fmt.Printf("Clusters:           %d\n", result.Clusters)
			fmt.Printf("Topics Created:     %d\n", result.TopicsCreated)
			fmt.Printf("Topics Reused:      %d\n", result.TopicsReused)
			fmt.Printf("Sources Added:      %d\n", result.SourcesAdded)
			fmt.Printf("Duration:           %s\n", result.Duration.Round(time.Millisecond))

			if result.ErrorMessage != "" {
				fmt.Printf("\nRun failed: %s\n", result.ErrorMessage)
			}
			if len(result.Errors) > 0 {
				fmt.Printf("\nErrors:\n")
				for _, e := range result.Errors {
					fmt.Printf("  - %s\n", e)
				}
			}

			if len(result.Topics) > 0 {
				fmt.Printf("\nNew topics awaiting approval:\n")
				for _, t := range result.Topics {
					fmt.Printf("  [%d] %s\n", t.ID, t.Title)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceName, "source", "", "Run discovery for specific source only")
	return cmd
}

// ============ TOPICS COMMANDS ============

func topicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List and manage topics",
	}

	cmd.AddCommand(topicsListCmd())
	cmd.AddCommand(topicsShowCmd())
	cmd.AddCommand(topicsCreateCmd())
	cmd.AddCommand(topicsApproveCmd())
	cmd.AddCommand(topicsCloseCmd("disapprove", "Reject a topic", engineDisapprove))
	cmd.AddCommand(topicsCloseCmd("duplicate", "Mark a topic as a duplicate", engineMarkDuplicate))
	cmd.AddCommand(topicsDeleteCmd())
	cmd.AddCommand(topicsResumeCmd())
	return cmd
}

func topicsListCmd() *cobra.Command {
	var statuses []string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.DefaultTopicFilter()
			filter.Limit = limit
			filter.Offset = offset

			for _, s := range statuses {
				status, ok := models.ParseTopicStatus(s)
				if !ok {
					return apperr.Validation("unknown status %q", s)
				}
				filter.Statuses = append(filter.Statuses, status)
			}

			topics, err := engine.Pipeline.ListTopics(cmd.Context(), filter)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Topics (%d) ===\n\n", len(topics))
			for _, t := range topics {
				fmt.Printf("[%d] %s | %s\n", t.ID, t.Status, t.Title)
				fmt.Printf("    Slug: %s | Created: %s\n", t.Slug, t.CreatedAt.Format(time.RFC1123))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (NEW, APPROVED, ...); repeatable")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum topics to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Topics to skip")
	return cmd
}

func topicsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <topic-id>",
		Short: "Show a topic with its sources, article and citations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "topic")
			if err != nil {
				return err
			}
			detail, err := engine.Pipeline.GetTopic(cmd.Context(), id)
			if err != nil {
				return err
			}

			t := detail.Topic
			fmt.Printf("\n=== Topic %d ===\n", t.ID)
			fmt.Printf("Title:       %s\n", t.Title)
			fmt.Printf("Status:      %s\n", t.Status)
			fmt.Printf("Slug:        %s\n", t.Slug)
			fmt.Printf("External ID: %s\n", t.ExternalID)

			fmt.Printf("\nSources (%d):\n", len(t.Sources))
			for _, s := range t.Sources {
				mark := " "
				if s.Approved {
					mark = "x"
				}
				fmt.Printf("  [%s] %s (%s)\n", mark, s.URL, s.Kind)
			}

			if a := t.Article; a != nil {
				fmt.Printf("\nArticle %d: %s\n", a.ID, a.Title)
				fmt.Printf("  Type: %s | Slug: %s\n", a.ContentType, a.Slug)
				if a.PublishedAt != nil {
					fmt.Printf("  Published: %s\n", a.PublishedAt.Format(time.RFC1123))
				}
				for _, issue := range a.Outline.QAIssues {
					fmt.Printf("  QA %s: %s\n", issue.Type, issue.Message)
				}
				if s := a.Outline.CategorySuggestion; s != nil && s.Label != "" {
					fmt.Printf("  Suggested category: %s\n", s.Label)
				}
			}

			if len(detail.Citations) > 0 {
				fmt.Printf("\nCitations (%d):\n", len(detail.Citations))
				for _, c := range detail.Citations {
					fmt.Printf("  - %s\n", c.SourceURL)
				}
			}
			return nil
		},
	}
}

func topicsCreateCmd() *cobra.Command {
	var urls []string

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a topic by hand",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, err := engine.Pipeline.CreateTopic(cmd.Context(), strings.Join(args, " "), urls)
			if err != nil {
				return err
			}
			fmt.Printf("Topic %d created: %s (%d sources)\n", topic.ID, topic.Slug, len(topic.Sources))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&urls, "url", nil, "Source URL; repeatable")
	return cmd
}

func topicsApproveCmd() *cobra.Command {
	var urls []string
	var all bool

	cmd := &cobra.Command{
		Use:   "approve <topic-id>",
		Short: "Approve a topic with the selected source URLs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0], "topic")
			if err != nil {
				return err
			}

			if all {
				detail, err := engine.Pipeline.GetTopic(ctx, id)
				if err != nil {
					return err
				}
				for _, s := range detail.Topic.Sources {
					urls = append(urls, s.URL)
				}
			}

			res, err := engine.Pipeline.Approve(ctx, id, urls)
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&urls, "url", nil, "Source URL to approve; repeatable")
	cmd.Flags().BoolVar(&all, "all", false, "Approve every source of the topic")
	return cmd
}

type stageFunc func(ctx context.Context, id uint) (*pipeline.StageResult, error)

func engineDisapprove(ctx context.Context, id uint) (*pipeline.StageResult, error) {
	return engine.Pipeline.Disapprove(ctx, id)
}

func engineMarkDuplicate(ctx context.Context, id uint) (*pipeline.StageResult, error) {
	return engine.Pipeline.MarkDuplicate(ctx, id)
}

func topicsCloseCmd(use, short string, run stageFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <topic-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "topic")
			if err != nil {
				return err
			}
			res, err := run(cmd.Context(), id)
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}
}

func topicsDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <topic-id>",
		Short: "Delete a topic with its sources, article and citations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "topic")
			if err != nil {
				return err
			}
			if !force {
				return apperr.Validation("deleting topic %d is permanent; pass --force to confirm", id)
			}
			res, err := engine.Pipeline.DeleteTopic(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("Topic %d deleted (%d sources)\n", id, res.Counts["sources"])
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm deletion")
	return cmd
}

func topicsResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Re-run collect for topics left in PROCESSING",
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := engine.Pipeline.ResumeStuck(cmd.Context())
			for _, res := range results {
				fmt.Printf("Topic %d resumed: %s\n", res.TopicID, res.To)
			}
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No topics to resume")
			}
			return nil
		},
	}
}

// ============ PIPELINE COMMANDS ============

func pipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run editorial stages on a topic",
	}

	cmd.AddCommand(stageCmd("collect", "Fetch citations for approved sources", func(ctx context.Context, id uint) (*pipeline.StageResult, error) {
		return engine.Pipeline.Collect(ctx, id)
	}))
	cmd.AddCommand(stageCmd("draft", "Generate the article draft", func(ctx context.Context, id uint) (*pipeline.StageResult, error) {
		return engine.Pipeline.Draft(ctx, id)
	}))
	cmd.AddCommand(stageCmd("review", "Run QA over the draft", func(ctx context.Context, id uint) (*pipeline.StageResult, error) {
		return engine.Pipeline.Review(ctx, id)
	}))
	cmd.AddCommand(pipelineCategorizeCmd())
	cmd.AddCommand(pipelineRunCmd())
	return cmd
}

func stageCmd(use, short string, run stageFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <topic-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "topic")
			if err != nil {
				return err
			}
			res, err := run(cmd.Context(), id)
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}
}

func pipelineCategorizeCmd() *cobra.Command {
	var categoryID, subcategoryID uint

	cmd := &cobra.Command{
		Use:   "categorize <topic-id>",
		Short: "Assign the article to a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "topic")
			if err != nil {
				return err
			}

			var overrides pipeline.Overrides
			if cmd.Flags().Changed("category") {
				overrides.CategoryID = &categoryID
			}
			if cmd.Flags().Changed("subcategory") {
				overrides.SubcategoryID = &subcategoryID
			}

			res, err := engine.Pipeline.Categorize(cmd.Context(), id, overrides)
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}

	cmd.Flags().UintVar(&categoryID, "category", 0, "Category id to assign instead of classifying")
	cmd.Flags().UintVar(&subcategoryID, "subcategory", 0, "Subcategory id to assign instead of classifying")
	return cmd
}

func pipelineRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <topic-id>",
		Short: "Collect, draft and review an approved topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "topic")
			if err != nil {
				return err
			}
			results, err := engine.Pipeline.RunPipeline(cmd.Context(), id)
			for _, res := range results {
				printResult(res)
				fmt.Println()
			}
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Printf("Topic %d is already past review\n", id)
			}
			return nil
		},
	}
}

// ============ ARTICLES COMMANDS ============

func articlesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "articles",
		Short: "Publish and unpublish articles",
	}

	cmd.AddCommand(articleCmd("publish", "Publish a READY article", func(ctx context.Context, id uint) (*pipeline.StageResult, error) {
		return engine.Pipeline.Publish(ctx, id)
	}))
	cmd.AddCommand(articleCmd("unpublish", "Hide a published article", func(ctx context.Context, id uint) (*pipeline.StageResult, error) {
		return engine.Pipeline.Unpublish(ctx, id)
	}))
	return cmd
}

func articleCmd(use, short string, run stageFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <article-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "article")
			if err != nil {
				return err
			}
			res, err := run(cmd.Context(), id)
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}
}

// ============ LOGS COMMANDS ============

func logsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect the audit log",
	}

	cmd.AddCommand(logsListCmd())
	return cmd
}

func logsListCmd() *cobra.Command {
	var group string
	var topicID uint
	var since time.Duration
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := audit.GroupActions(group)
			if err != nil {
				return apperr.Validation("%v", err)
			}

			filter := storage.DefaultAuditFilter()
			filter.Actions = actions
			filter.Limit = limit
			if topicID != 0 {
				filter.TopicID = &topicID
			}
			if since > 0 {
				from := time.Now().Add(-since)
				filter.Since = &from
			}

			entries, err := engine.Repo.ListAudit(cmd.Context(), filter)
			if err != nil {
				return apperr.Internal("logs", err)
			}

			fmt.Printf("\n=== Audit Log (%d) ===\n\n", len(entries))
			for _, e := range entries {
				topic := "-"
				if e.TopicID != nil {
					topic = strconv.FormatUint(uint64(*e.TopicID), 10)
				}
				fmt.Printf("%s  %-8s %-20s topic=%s\n", e.CreatedAt.Format(time.RFC3339), e.Meta.Status, e.Action, topic)
				if e.Meta.Message != "" {
					fmt.Printf("    %s\n", e.Meta.Message)
				}
				if len(e.Meta.Counts) > 0 {
					fmt.Printf("    %s\n", formatCounts(e.Meta.Counts))
				}
				if e.Meta.Error != "" {
					fmt.Printf("    error: %s\n", e.Meta.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", "all", "Action group: all, discovery or editorial")
	cmd.Flags().UintVar(&topicID, "topic", 0, "Only entries for this topic")
	cmd.Flags().DurationVar(&since, "since", 0, "Only entries newer than this (e.g. 24h)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")
	return cmd
}
