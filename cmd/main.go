package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pdf-analyzer/internal/config"
	"pdf-analyzer/internal/embedding"
	"pdf-analyzer/internal/helper"
	"pdf-analyzer/internal/links"
	"pdf-analyzer/internal/llmservice"
	"pdf-analyzer/internal/parser"
	"pdf-analyzer/internal/rag"
	"pdf-analyzer/internal/server"
	"pdf-analyzer/internal/session"
	"pdf-analyzer/internal/tui"
)

const configFilePath = "./configs/config.yaml"

type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	var files fileList
	configPath := flag.String("config", configFilePath, "Path to the YAML config file")
	flag.Var(&files, "file", "Path to a document to analyze (repeatable)")
	query := flag.String("query", "", "Question to answer about the documents")
	serve := flag.Bool("serve", false, "Run the HTTP API")
	addr := flag.String("addr", "", "HTTP listen address, overrides server.address")
	asJSON := flag.Bool("json", false, "Print the one-shot result as JSON")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	config.LoadEnv()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setLogLevel(cfg.LogLevel, *debug)
	if *addr != "" {
		cfg.Server.Address = *addr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	if err := cfg.ResolveCredentials(os.Getenv); err != nil {
		log.Fatal().Err(err).Msg("Missing credentials")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newService(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing pipeline")
	}

	switch {
	case *serve:
		runServer(ctx, cfg, svc)
	case len(files) > 0 && *query != "":
		runOnce(ctx, svc, files, *query, *asJSON)
	case len(files) > 0:
		runInteractive(ctx, svc, files)
	default:
		fmt.Fprintln(os.Stderr, "Please provide -serve, or one or more -file flags with an optional -query")
		flag.Usage()
		os.Exit(2)
	}
}

func setLogLevel(level string, debug bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func newService(ctx context.Context, cfg *config.Config) (*rag.Service, error) {
	embedder, err := embedding.NewEmbedder(ctx, &cfg.LLM)
	if err != nil {
		return nil, err
	}
	model, err := llmservice.NewModel(ctx, &cfg.LLM)
	if err != nil {
		return nil, err
	}

	web := links.NewWebSearcher(cfg.Search.WebBaseURL, &http.Client{Timeout: cfg.Timeouts.Search})
	video, err := links.NewVideoSearcher(ctx, cfg.Search.VideoKey, cfg.Search.VideoEndpoint)
	if err != nil {
		return nil, err
	}
	augmenter := links.NewAugmenter(web, video, cfg.Search.WebLimit, cfg.Search.VideoLimit, cfg.Timeouts.Search)

	return rag.NewService(embedder, llmservice.NewClient(model, cfg.LLM.Temperature), augmenter, cfg), nil
}

func readFiles(paths []string) ([]parser.File, error) {
	files := make([]parser.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		files = append(files, parser.File{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

func process(ctx context.Context, svc *rag.Service, sess *session.Session, paths []string) string {
	files, err := readFiles(paths)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading documents")
	}
	res, err := svc.Process(ctx, sess, files)
	if err != nil {
		log.Fatal().Err(err).Msg("Error processing documents")
	}
	return fmt.Sprintf("%d file(s), %d page(s), %d chunk(s) indexed in %s",
		res.Files, res.Pages, res.Chunks, res.Duration.Round(time.Millisecond))
}

func runOnce(ctx context.Context, svc *rag.Service, paths []string, query string, asJSON bool) {
	sess := session.New()
	summary := process(ctx, svc, sess, paths)
	log.Info().Msg(summary)

	turn, err := svc.Ask(ctx, sess, query)
	if err != nil {
		log.Fatal().Err(err).Msg("Error answering question")
	}

	if asJSON {
		helper.PrettyPrint(os.Stdout, turn)
		return
	}

	log.Info().Msg("Question: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Msg("Answer: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", turn.Record.Answer)

	log.Info().Msg("Sources: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, src := range turn.Sources {
		fmt.Printf("[chunk %d, %.3f] %s\n", src.ChunkIndex, src.Similarity, src.Preview)
	}
	fmt.Println()

	printLinks("Web links", turn.Record.Links.Web.URLs)
	printLinks("Video links", turn.Record.Links.Video.URLs)
	for _, w := range turn.Record.Links.Warnings() {
		log.Warn().Msg(w)
	}
}

func printLinks(title string, urls []string) {
	log.Info().Msgf("%s: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>", title)
	if len(urls) == 0 {
		fmt.Printf("(none)\n\n")
		return
	}
	for _, u := range urls {
		fmt.Println(u)
	}
	fmt.Println()
}

func runInteractive(ctx context.Context, svc *rag.Service, paths []string) {
	sess := session.New()
	summary := process(ctx, svc, sess, paths)

	// keep log lines from tearing the alt screen
	zerolog.SetGlobalLevel(zerolog.Disabled)
	p := tea.NewProgram(tui.New(ctx, svc, sess, summary), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, cfg *config.Config, svc *rag.Service) {
	handler := server.NewHandler(svc, session.NewRegistry(), cfg.Server.MaxUploadBytes)
	srv := server.NewRouter(cfg, handler)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down server")
		}
	}()

	log.Info().Str("addr", srv.Addr).Msg("Starting HTTP server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
