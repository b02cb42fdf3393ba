package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/research/internal/models"
	"github.com/xhad/research/pkg/config"
	"github.com/xhad/research/pkg/llm"
	"github.com/xhad/research/pkg/rag"
	"github.com/xhad/research/server"
	"go.uber.org/zap"
)

// DemoURL is processed by -demo.
const DemoURL = "https://books.toscrape.com/"

const (
	noURLsMessage     = "Please select at least one URL"
	notIndexedMessage = "You must process URLs first."
)

type urlList []string

func (u *urlList) String() string { return strings.Join(*u, ",") }

func (u *urlList) Set(value string) error {
	*u = append(*u, value)
	return nil
}

type options struct {
	configPath string
	urls       urlList
	demo       bool
	raw        bool
	verbose    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to config file")
	flag.Var(&opts.urls, "url", "URL to research (repeatable)")
	flag.BoolVar(&opts.demo, "demo", false, "Process "+DemoURL+" and exit")
	flag.BoolVar(&opts.raw, "raw", false, "Answer with retrieved context only, without the sources prompt")
	flag.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	if err := config.LoadEnv(); err != nil {
		log.Fatalf("loading .env: %v", err)
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		log.Fatal(err)
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	} else {
		cfg.Log.Level = "warn"
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("%s", e.Error())
		}
		os.Exit(1)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, opts, logger); err != nil {
		log.Fatal(err)
	}
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// spin animates bar until the returned stop func is called.
func spin(bar *progressbar.ProgressBar) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bar.Add(1)
			}
		}
	}()
	return func() {
		close(done)
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
}

func run(cfg *config.Config, opts options, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pipeline, err := rag.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	urls := []string(opts.urls)
	if opts.demo {
		urls = []string{DemoURL}
	}
	selected := server.SelectURLs(urls, cfg.UI.MaxURLs)
	if len(selected) == cfg.UI.MaxURLs && len(urls) > len(selected) {
		color.Yellow("Only the first %d URLs are used", cfg.UI.MaxURLs)
	}
	urls = selected

	color.Blue("\n%s\n", cfg.UI.Title)
	if len(urls) == 0 {
		color.Yellow("%s", noURLsMessage)
	} else if err := processURLs(ctx, pipeline, urls); err != nil {
		if opts.demo {
			return err
		}
		color.Red("Error: %v", err)
	}

	if opts.demo {
		return nil
	}

	var chatEngine *llm.ChatEngine
	if opts.raw {
		chatEngine, err = llm.NewWithConfig(rag.ChatConfig(cfg))
		if err != nil {
			return fmt.Errorf("failed to initialize chat engine: %w", err)
		}
	}

	color.Cyan("\nAsk a question about the processed pages (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()

	for {
		userPrompt("\nQuestion: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if q := strings.ToLower(query); q == "exit" || q == "quit" {
			break
		}

		querySpinner := getSpinner("Generating answer...")
		stopSpinner := spin(querySpinner)
		answer, err := ask(ctx, pipeline, chatEngine, query)
		stopSpinner()

		switch {
		case errors.Is(err, rag.ErrIndexNotReady):
			color.Yellow("%s", notIndexedMessage)
		case err != nil:
			color.Red("Error: %v", err)
		default:
			printAnswer(answer)
		}

		if ctx.Err() != nil {
			break
		}
	}

	return scanner.Err()
}

func processURLs(ctx context.Context, pipeline *rag.Pipeline, urls []string) error {
	bar := getSpinner(rag.StageInitializing.String())
	stopSpinner := spin(bar)

	started := time.Now()
	err := pipeline.ProcessURLs(ctx, urls, func(stage rag.Stage) {
		bar.Describe(color.CyanString(stage.String()))
	})
	stopSpinner()

	if errors.Is(err, rag.ErrNoContent) {
		color.Yellow("No content could be extracted from %s", strings.Join(urls, ", "))
		return nil
	}
	if err != nil {
		return err
	}

	color.Green("✓ Processed %d URLs in %s", len(urls), time.Since(started).Round(time.Millisecond))
	return nil
}

func ask(ctx context.Context, pipeline *rag.Pipeline, chatEngine *llm.ChatEngine, query string) (*models.Answer, error) {
	if chatEngine == nil {
		return pipeline.GenerateAnswers(ctx, query)
	}

	docs, err := pipeline.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	return chatEngine.Chat(ctx, query, docs)
}

func printAnswer(answer *models.Answer) {
	heading := color.New(color.FgCyan, color.Bold)

	heading.Println("\nAnswers:")
	fmt.Println(answer.Text)

	if len(answer.Sources) == 0 {
		return
	}
	heading.Println("\nSources:")
	for _, source := range answer.Sources {
		fmt.Println(source)
	}
}
