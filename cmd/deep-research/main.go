package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mbecker/deep-research/pkg/clients"
	"github.com/mbecker/deep-research/pkg/config"
	"github.com/mbecker/deep-research/pkg/research"
	"github.com/mbecker/deep-research/pkg/research/tools"
	"github.com/spf13/cobra"
)

var (
	topic            string
	maxIterations    int
	qualityThreshold float64
	minRelevantDocs  int
	stream           bool
	outFile          string
)

func main() {
	// Setup structured logging
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	// Load .env file
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist, as long as env vars are set
	}

	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "deep-research",
		Short: "A terminal-based iterative research agent",
		Long:  `deep-research is an autonomous agent that investigates a topic by cycling through query generation, search, relevance grading and synthesis until it has enough evidence for a report.`,
		Run: func(cmd *cobra.Command, args []string) {

			if !cmd.Flags().Changed("topic") {
				// Interactive Mode
				reader := bufio.NewReader(os.Stdin)
				fmt.Print("Enter research topic: ")
				input, _ := reader.ReadString('\n')
				topic = strings.TrimSpace(input)
			}

			if err := research.ValidateTopic(topic); err != nil {
				slog.Error("Invalid topic", "error", err)
				os.Exit(1)
			}

			runCfg := research.Config{
				MaxIterations:    maxIterations,
				QualityThreshold: qualityThreshold,
			}
			if cmd.Flags().Changed("min-relevant-docs") {
				runCfg.MinRelevantDocs = &minRelevantDocs
			}

			ctx := context.Background()

			llm, err := clients.GoogleAI(ctx, clients.DefaultModel)
			if err != nil {
				slog.Error("Failed to init LLM client", "error", err)
				os.Exit(1)
			}

			engine := research.NewEngine(tools.NewArxivBackend(cfg.SearchMaxResults), research.NewLLM(llm))

			slog.Info("Starting research", "topic", topic, "max_iterations", runCfg.MaxIterations)

			var final research.ResearchState
			if stream {
				for event, err := range engine.Stream(ctx, topic, runCfg) {
					if err != nil {
						slog.Error("Research failed", "node", event.Node, "error", err)
					}
					final = event.State
					if event.Node == research.NodeEnd {
						break
					}
					fmt.Fprintf(os.Stderr, "[%s] status=%s iteration=%d relevant=%d\n",
						event.Node, event.State.Status, event.State.Iteration, len(event.State.RelevantDocuments))
				}
			} else {
				final, err = engine.Run(ctx, topic, runCfg)
				if err != nil {
					slog.Error("Research failed", "error", err)
				}
			}

			result := final.Report()
			printReport(result)

			if final.Status == research.StatusComplete {
				if err := writeReportFile(result); err != nil {
					slog.Error("Failed to write report file", "error", err)
				}
			}

			if final.Status == research.StatusError {
				os.Exit(1)
			}
		},
	}

	rootCmd.Flags().StringVarP(&topic, "topic", "t", "", "The research topic")
	rootCmd.Flags().IntVar(&maxIterations, "max-iterations", cfg.MaxIterations, "Maximum search-grade cycles")
	rootCmd.Flags().Float64Var(&qualityThreshold, "quality-threshold", cfg.QualityThreshold, "Relevance score a document must reach to count")
	rootCmd.Flags().IntVar(&minRelevantDocs, "min-relevant-docs", cfg.MinRelevantDocs, "Relevant documents needed before synthesis")
	rootCmd.Flags().BoolVar(&stream, "stream", false, "Print per-step progress while running")
	rootCmd.Flags().StringVarP(&outFile, "out", "o", "", "Report output path (default report_<timestamp>.md)")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func printReport(r research.Result) {
	fmt.Println()
	fmt.Printf("# Research Report: %s\n\n", r.Topic)
	if r.Error != "" {
		fmt.Printf("Run ended with error: %s\n\n", r.Error)
	}
	if r.Synthesis != "" {
		fmt.Println(r.Synthesis)
		fmt.Println()
	}
	fmt.Printf("Iterations: %d | Queries: %d | Searched: %d | Graded: %d | Relevant: %d\n\n",
		r.Stats.Iterations, r.Stats.QueriesGenerated, r.Stats.DocumentsSearched,
		r.Stats.DocumentsGraded, r.Stats.RelevantDocuments)
	if len(r.Sources) > 0 {
		fmt.Println("## Sources")
		for i, s := range r.Sources {
			fmt.Printf("%d. %s (%.0f%%) - %s\n", i+1, s.Title, s.RelevanceScore*100, s.URL)
		}
	}
}

func writeReportFile(r research.Result) error {
	path := outFile
	if path == "" {
		path = fmt.Sprintf("report_%s.md", time.Now().Format("20060102_150405"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Research Report: %s\n\n", r.Topic)
	b.WriteString(r.Synthesis)
	b.WriteString("\n\n## Sources\n\n")
	for i, s := range r.Sources {
		fmt.Fprintf(&b, "%d. [%s](%s) - relevance %.0f%%\n", i+1, s.Title, s.URL, s.RelevanceScore*100)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	slog.Info("Report saved", "path", path)
	return nil
}
