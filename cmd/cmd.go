package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
	"github.com/xhad/pai/pkg/business"
	"github.com/xhad/pai/pkg/llm"
	"github.com/xhad/pai/pkg/processor"
	"github.com/xhad/pai/server"
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString("%s", description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString("%s", description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	var streaming bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST and WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			return withApp(ctx, func(a *app) error {
				color.Cyan("Serving on http://%s%s", config.Server.Addr(), server.APIPrefix)
				srv := server.New(a.assistant, server.Config{
					Addr:      config.Server.Addr(),
					Streaming: streaming || config.UI.Streaming,
				}, logger.Named("server"))
				return srv.ListenAndServe(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&streaming, "streaming", false, "stream WebSocket replies fragment by fragment")
	return cmd
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Extract, chunk and index local documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			return withApp(ctx, func(a *app) error {
				bar := getProgressBar(len(args), "📄 Indexing documents...")
				var chunks, failed int
				for _, path := range args {
					result, err := a.assistant.UploadDocument(ctx, path, "")
					bar.Add(1)
					if err != nil {
						failed++
						logger.Warn("failed to index document", zap.String("path", path), zap.Error(err))
						color.Red("\n✗ %s: %v", filepath.Base(path), err)
						continue
					}
					chunks += result.ChunksCreated
				}
				bar.Finish()
				color.Green("\n✓ Indexed %d of %d documents into %s chunks",
					len(args)-failed, len(args), humanize.Comma(int64(chunks)))
				if failed > 0 {
					return fmt.Errorf("%d documents failed", failed)
				}
				return nil
			})
		},
	}
}

func ingestURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest-url <url>",
		Short: "Crawl a website and index its pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			return withApp(ctx, func(a *app) error {
				color.Blue("Starting crawl of %s", args[0])
				spinner := getSpinner("🌐 Crawling pages...")
				var bar *progressbar.ProgressBar
				start := time.Now()

				results, err := a.assistant.IngestURL(ctx, args[0], func(done, total int) {
					if bar == nil {
						spinner.Finish()
						bar = getProgressBar(total, "💾 Indexing pages...")
					}
					bar.Set(done)
				})
				if bar != nil {
					bar.Finish()
				} else {
					spinner.Finish()
				}
				if err != nil {
					return fmt.Errorf("failed to ingest %s: %w", args[0], err)
				}

				var chunks int
				for _, r := range results {
					chunks += r.ChunksCreated
				}
				color.Green("\n✓ Indexed %d pages into %s chunks in %s",
					len(results), humanize.Comma(int64(chunks)), time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
}

func chatCmd() *cobra.Command {
	var (
		chatID     string
		documentID string
		streaming  bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with your knowledge base",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()
			streaming = streaming || config.UI.Streaming

			return withApp(ctx, func(a *app) error {
				color.Cyan("\nChat with your knowledge base (type 'exit' to quit)")

				scanner := bufio.NewScanner(os.Stdin)
				userPrompt := color.New(color.FgGreen).PrintfFunc()
				assistantPrompt := color.New(color.FgCyan).PrintfFunc()

				for {
					userPrompt("\nYou: ")
					if !scanner.Scan() {
						return scanner.Err()
					}
					query := strings.TrimSpace(scanner.Text())
					if query == "" {
						continue
					}
					if strings.EqualFold(query, "exit") {
						return nil
					}

					if streaming {
						assistantPrompt("Assistant: ")
						reply, err := a.assistant.ChatStream(ctx, query, chatID, documentID, func(chunk string) error {
							assistantPrompt("%s", chunk)
							return nil
						})
						fmt.Println()
						if err != nil {
							color.Red("Error: %v", err)
							continue
						}
						chatID = reply.ChatID
						continue
					}

					spinner := getSpinner("🤖 Generating response...")
					reply, err := a.assistant.Chat(ctx, query, chatID, documentID)
					spinner.Finish()
					fmt.Print("\r")
					if err != nil {
						color.Red("Error: %v", err)
						continue
					}
					chatID = reply.ChatID
					assistantPrompt("Assistant: %s\n", reply.Response)
					if len(reply.ContextDocuments) > 0 {
						color.HiBlack("Sources: %s", strings.Join(reply.ContextDocuments, ", "))
					}
				}
			})
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "continue an existing chat session")
	cmd.Flags().StringVar(&documentID, "document", "", "restrict retrieval to one document")
	cmd.Flags().BoolVar(&streaming, "streaming", false, "print replies as they are generated")
	return cmd
}

func searchCmd() *cobra.Command {
	var (
		documentID string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the indexed chunks closest to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withApp(cmd.Context(), func(a *app) error {
				spinner := getSpinner("🔍 Searching documents...")
				result, err := a.assistant.SearchDocuments(cmd.Context(), query, documentID, limit)
				spinner.Finish()
				fmt.Print("\r")
				if err != nil {
					return err
				}
				if result.TotalResults == 0 {
					color.Yellow("No matching chunks")
					return nil
				}
				for i, hit := range result.Hits {
					color.Cyan("%d. %s #%d (score %.3f)", i+1, hit.DocumentID, hit.Index, hit.Score)
					fmt.Println(hit.Content)
				}
				color.HiBlack("%s", llm.FormatSources(result.Hits))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&documentID, "document", "", "restrict the search to one document")
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "number of chunks to show")
	return cmd
}

func forecastCmd() *cobra.Command {
	var periods int
	cmd := &cobra.Command{
		Use:   "forecast <file>",
		Short: "Project future amounts from a dated CSV or Excel file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			var docType models.DocumentType
			switch processor.Extension(path) {
			case "csv":
				docType = models.TypeCSV
			case "xlsx", "xls":
				docType = models.TypeExcel
			default:
				return fmt.Errorf("%s: forecasts need a csv or excel file", path)
			}

			analyzer := business.NewAnalyzer(logger.Named("business"))
			id := filepath.Base(path)
			if err := analyzer.AddDocument(id, path, docType); err != nil {
				return err
			}
			fc, err := analyzer.Forecast(id, periods)
			if err != nil {
				return err
			}

			color.Cyan("Forecast for %s (%d data points, trend %s)", id, fc.DataPoints, fc.Trend)
			for i, v := range fc.Values {
				fmt.Printf("  period %2d  %s\n", i+1, humanize.CommafWithDigits(v, 2))
			}
			color.HiBlack("slope %.2f  r² %.3f  ±%s", fc.Slope, fc.RSquared, humanize.CommafWithDigits(fc.ConfidenceInterval, 2))
			return nil
		},
	}
	cmd.Flags().IntVarP(&periods, "periods", "p", 12, "number of periods to project")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print index, chat and health statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				stats, err := a.assistant.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := map[string]interface{}{
					"stats":  stats,
					"health": a.assistant.Health(cmd.Context()),
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
}

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the vector index, document catalog and business data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				color.Yellow("This deletes every indexed document. Re-run with --yes to confirm.")
				return nil
			}
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.assistant.Reset(cmd.Context()); err != nil {
					return err
				}
				color.Green("✓ Knowledge base reset")
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")
	return cmd
}

