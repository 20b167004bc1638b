package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"kindling/internal/config"
	"kindling/internal/database"
	"kindling/internal/inbox"
	"kindling/internal/llm"
	"kindling/internal/notify"
	"kindling/internal/pipeline"
	"kindling/internal/schedule"
	"kindling/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "kindling",
	Short:   "Turn Kindle highlights into notes and spaced-repetition reviews",
	Long:    "Kindling extracts highlights from Kindle HTML exports, routes them by color, selects the most salient concepts and actions, and schedules concepts for spaced-repetition review.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("kindling", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/kindling/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set your vault directory, reader profile, and reasoner.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Documents:")
		fmt.Printf("  Total: %d\n", stats.Documents)
		fmt.Printf("  Fully processed: %d\n", stats.DocumentsProcessed)
		fmt.Printf("  Highlights: %d\n", stats.TotalHighlights)
		fmt.Printf("  Extraction gaps: %d\n", stats.ExtractionGaps)
		fmt.Println("\nSelections:")
		fmt.Printf("  Concepts: %d\n", stats.ConceptCandidates)
		fmt.Printf("  Actions: %d\n", stats.ActionCandidates)
		fmt.Println("\nReview:")
		fmt.Printf("  Tracked concepts: %d\n", stats.TrackedConcepts)
		fmt.Printf("  Due now: %d\n", stats.ReviewsDue)
		return nil
	},
}

// --- process command ---

var processCmd = &cobra.Command{
	Use:   "process [export.html...]",
	Short: "Process Kindle HTML exports: extract -> select -> schedule -> notify",
	Long:  "Processes the named Kindle HTML exports, or scans the configured inbox directory when no files are given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		paths := args
		if len(paths) == 0 {
			if cfg.Inbox.Dir == "" {
				return fmt.Errorf("no exports named and no inbox directory configured")
			}
			paths, _, err = inbox.NewScanner(db, cfg.Inbox.Dir).Scan()
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				fmt.Println("Inbox is empty or fully processed.")
				return nil
			}
		}

		inputs := make([]pipeline.Input, 0, len(paths))
		for _, path := range paths {
			in, err := pipeline.InputFromFile(path)
			if err != nil {
				return err
			}
			inputs = append(inputs, in)
		}

		provider := llm.CreateProvider(
			cfg.Reasoner.Provider,
			cfg.Reasoner.Model,
			cfg.Reasoner.OllamaURL,
			cfg.Reasoner.AnthropicModel,
			cfg.Reasoner.APIKeyEnv,
		)
		if provider == nil {
			fmt.Println("No reasoner available; selections will use reading order.")
		}

		notifier, err := buildNotifier()
		if err != nil {
			return err
		}

		pipe := pipeline.New(cfg, db, provider, notifier)
		result := pipe.Run(context.Background(), inputs)

		failures := 0
		for _, doc := range result.Documents {
			title := doc.Title
			if title == "" {
				title = doc.DocumentID
			}
			fmt.Printf("\n%s\n", title)
			for _, step := range doc.Steps {
				switch {
				case step.Err != nil:
					fmt.Printf("  %s: error: %v\n", step.Name, step.Err)
				case step.Degraded:
					fmt.Printf("  %s: %s (degraded)\n", step.Name, step.Summary)
				default:
					fmt.Printf("  %s: %s\n", step.Name, step.Summary)
				}
			}
			if doc.Failed() {
				failures++
			}
		}

		if failures > 0 {
			return fmt.Errorf("%d of %d document(s) failed; re-run to resume from the last completed stage", failures, len(result.Documents))
		}
		fmt.Println("\nDone. Run 'kindling review' to see what is due.")
		return nil
	},
}

func buildNotifier() (notify.Notifier, error) {
	if cfg.Vault.Dir == "" {
		fmt.Println("No vault directory configured; notes will be logged instead of written.")
		return notify.LogNotifier{}, nil
	}
	return notify.NewNoteWriter(cfg.Vault.Dir)
}

// --- review command ---

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List concepts due for review",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		scheduler := schedule.NewScheduler(db, cfg.Review.Intervals)
		due := scheduler.Due(time.Now())
		if len(due) == 0 {
			fmt.Println("Nothing due. Come back tomorrow.")
			return nil
		}

		fmt.Printf("%d concept(s) due:\n\n", len(due))
		for _, tc := range due {
			fmt.Printf("  %s\n", tc.Title)
			fmt.Printf("    id: %s\n", tc.ConceptID)
			fmt.Printf("    from: %s, due: %s, reviews: %d\n",
				tc.SourceDocumentID, tc.NextDueAt.Format("2006-01-02"), tc.ReviewCount)
		}
		fmt.Println("\nMark one reviewed with: kindling review done <id>")
		return nil
	},
}

var reviewDoneCmd = &cobra.Command{
	Use:   "done [concept-id or title]",
	Short: "Record a completed review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		conceptID := args[0]
		if existing, err := db.GetTrackedConcept(conceptID); err != nil {
			return err
		} else if existing == nil {
			// Titles are friendlier on the command line than UUIDs.
			byTitle, err := db.GetTrackedConceptByTitle(args[0])
			if err != nil {
				return err
			}
			if byTitle == nil {
				return fmt.Errorf("no tracked concept with id or title %q", args[0])
			}
			conceptID = byTitle.ConceptID
		}

		scheduler := schedule.NewScheduler(db, cfg.Review.Intervals)
		tc, err := scheduler.RecordReview(conceptID, time.Now())
		if err != nil {
			return err
		}

		fmt.Printf("Reviewed %q (%d review(s) so far).\n", tc.Title, tc.ReviewCount)
		fmt.Printf("Next due: %s\n", tc.NextDueAt.Format("2006-01-02"))
		return nil
	},
}

func init() {
	reviewCmd.AddCommand(reviewDoneCmd)
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local review dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		scheduler := schedule.NewScheduler(db, cfg.Review.Intervals)
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, scheduler, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "kindling.db")
	return database.Open(dbPath)
}
