// Package main is the docent CLI entry point.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/docent/internal/cli"
	"github.com/hyperjump/docent/internal/config"
	"github.com/hyperjump/docent/internal/rag"
	"github.com/hyperjump/docent/internal/server"
	"github.com/hyperjump/docent/internal/watcher"
	"github.com/hyperjump/docent/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/docent/config.yaml"
	defaultServerURL  = "http://localhost:7860"
)

// loadConfig loads config from path. When path is the default and a
// config.yaml exists in the current directory, that file is used instead.
// A missing file yields the defaults. It returns the path actually used.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// API keys may live in a .env file next to the binary's working directory.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "serve", "server":
		runServe()
	case "ask":
		runAsk()
	case "chat":
		runChat()
	case "index":
		runIndex()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("docent version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func setup(configPath string, debug bool) (*config.Config, *zap.Logger, string) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	return cfg, logger, resolved
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	document := fs.String("document", "", "document to load at startup")
	restore := fs.String("restore", "", "saved index to restore at startup (path without suffix)")
	saveOnExit := fs.Bool("save-on-exit", false, "save the current index to the index directory on shutdown")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, resolvedConfigPath := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("embedding", cfg.Embedding.Provider),
		zap.String("generation", cfg.Generation.Provider))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := rag.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize session", zap.Error(err))
	}
	defer session.Close()

	var watch server.DocumentWatcher
	if cfg.Watch.Enabled {
		w := watcher.NewWatcher(
			func(path string) {
				if _, err := session.LoadDocument(ctx, path); err != nil {
					logger.Warn("reload changed document failed", zap.String("path", path), zap.Error(err))
				}
			},
			func(path string) {
				logger.Warn("document removed; keeping its index", zap.String("path", path))
			},
			watcher.WithLogger(logger),
			watcher.WithDebounce(cfg.Watch.Debounce),
		)
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
		watch = w
	}

	switch {
	case *restore != "":
		if err := session.RestoreIndex(ctx, *restore); err != nil {
			logger.Fatal("Failed to restore index", zap.String("path", *restore), zap.Error(err))
		}
	case *document != "":
		if _, err := session.LoadDocument(ctx, *document); err != nil {
			logger.Fatal("Failed to load document", zap.String("path", *document), zap.Error(err))
		}
	}
	if doc := session.DocumentPath(); doc != "" && watch != nil {
		if err := watch.Watch(doc); err != nil {
			logger.Warn("watch document failed", zap.String("path", doc), zap.Error(err))
		}
	}

	srv := server.NewServer(session, cfg, logger, watch)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
	if *saveOnExit && session.IsReady() {
		path := server.DefaultIndexPath(cfg, session.DocumentPath())
		if err := session.SaveIndex(shutdownCtx, path); err != nil {
			logger.Warn("index save failed", zap.String("path", path), zap.Error(err))
		}
	}
}

// openSession builds a local session and loads doc, reusing its saved index
// when reuse is set and a compatible one exists.
func openSession(ctx context.Context, cfg *config.Config, logger *zap.Logger, doc string, reuse bool) (*rag.Session, error) {
	session, err := rag.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(doc)
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	if reuse {
		saved := server.DefaultIndexPath(cfg, abs)
		if err := session.RestoreIndex(ctx, saved); err == nil && session.DocumentPath() == abs {
			logger.Debug("reusing saved index", zap.String("path", saved))
			return session, nil
		} else if err != nil {
			logger.Debug("saved index not reusable", zap.String("path", saved), zap.Error(err))
		}
	}
	if _, err := session.LoadDocument(ctx, abs); err != nil {
		_ = session.Close()
		return nil, err
	}
	return session, nil
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = answer in-process)")
	document := fs.String("document", "", "document to answer from (loaded into the server when -server is set)")
	reuse := fs.Bool("reuse-index", true, "reuse a saved index for the document when compatible")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	question := buildQuestion(fs.Args())
	if question == "" {
		fatalf("Usage: docent ask [flags] <question>")
	}
	cfg, logger, _ := setup(*configPath, *debug)
	defer logger.Sync()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var a asker
	if *serverURL != "" {
		c := newClient(*serverURL)
		if *document != "" {
			abs, _ := filepath.Abs(*document)
			if _, err := c.Load(ctx, abs); err != nil {
				fatalf("Load failed: %v", err)
			}
		}
		a = c
	} else {
		if *document == "" {
			fatalf("-document is required without -server")
		}
		session, err := openSession(ctx, cfg, logger, *document, *reuse)
		if err != nil {
			fatalf("Load failed: %v", err)
		}
		defer session.Close()
		a = localAsker{session: session}
	}

	ans, err := a.Ask(ctx, question)
	if err != nil {
		fatalf("Ask failed: %v", err)
	}
	if err := cli.WriteAnswer(os.Stdout, ans, format, cfg.RAG.MaxContextChunks, cfg.RAG.SourcePreviewChars); err != nil {
		fatalf("Output failed: %v", err)
	}
	if !ans.OK() {
		os.Exit(2)
	}
}

func runChat() {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = answer in-process)")
	reuse := fs.Bool("reuse-index", true, "reuse a saved index for the document when compatible")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	cfg, logger, _ := setup(*configPath, *debug)
	defer logger.Sync()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	doc := fs.Arg(0)
	var a asker
	if *serverURL != "" {
		c := newClient(*serverURL)
		if doc != "" {
			abs, _ := filepath.Abs(doc)
			stats, err := c.Load(ctx, abs)
			if err != nil {
				fatalf("Load failed: %v", err)
			}
			_ = cli.WriteLoadStats(os.Stdout, stats, cli.OutputText)
		}
		a = c
	} else {
		if doc == "" {
			fatalf("Usage: docent chat [flags] <document>")
		}
		session, err := openSession(ctx, cfg, logger, doc, *reuse)
		if err != nil {
			fatalf("Load failed: %v", err)
		}
		defer session.Close()
		fmt.Printf("Loaded %s. Ask a question, or type exit to quit.\n", session.DocumentPath())
		a = localAsker{session: session}
	}
	if err := chatLoop(ctx, os.Stdin, os.Stdout, a); err != nil {
		fatalf("Chat failed: %v", err)
	}
}

// chatLoop reads one question per line from in until EOF or an exit
// command and writes each answer to out.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, a asker) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit", "/q":
			return nil
		}
		ans, err := a.Ask(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if err := cli.WriteAnswer(out, ans, cli.OutputText, cli.ChatSources, cli.ChatPreviewLength); err != nil {
			return err
		}
	}
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	out := fs.String("out", "", "index path without suffix (default: index directory + document name)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() < 1 {
		fatalf("Usage: docent index [flags] <document>")
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}

	cfg, logger, _ := setup(*configPath, *debug)
	defer logger.Sync()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := rag.New(ctx, cfg, logger)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	defer session.Close()
	stats, err := session.LoadDocument(ctx, fs.Arg(0))
	if err != nil {
		fatalf("Load failed: %v", err)
	}
	path := *out
	if path == "" {
		path = server.DefaultIndexPath(cfg, stats.DocumentPath)
	}
	if err := session.SaveIndex(ctx, path); err != nil {
		fatalf("Save failed: %v", err)
	}
	if err := cli.WriteLoadStats(os.Stdout, stats, format); err != nil {
		fatalf("Output failed: %v", err)
	}
	if format == cli.OutputText {
		fmt.Printf("Index saved to %s\n", path)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = show local configuration)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	if *serverURL != "" {
		info, err := newClient(*serverURL).Status(context.Background())
		if err != nil {
			fatalf("Status failed: %v", err)
		}
		if err := cli.WriteInfo(os.Stdout, info, format); err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}

	cfg, logger, _ := setup(*configPath, false)
	defer logger.Sync()
	session, err := rag.New(context.Background(), cfg, logger)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	defer session.Close()
	info := session.Info()
	if err := cli.WriteInfo(os.Stdout, &info, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// buildQuestion joins positional args so questions work with or without quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags that follow positional arguments to the front so
// flag.Parse sees them; it stops at the first non-flag argument otherwise.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printUsage() {
	fmt.Println(`docent - Ask questions about a document

Usage:
  docent serve [flags]                 Start the HTTP server
  docent ask [flags] <question>        Answer one question
  docent chat [flags] <document>       Interactive question loop
  docent index [flags] <document>      Build and save a document's index
  docent status [flags]                Show session and model status
  docent version                       Show version
  docent help                          Show this help

Serve Flags:
  --config string      Config file path (default: /usr/local/etc/docent/config.yaml)
  --debug              Enable debug logging
  --document string    Document to load at startup
  --restore string     Saved index to restore at startup
  --save-on-exit       Save the current index on shutdown

Ask Flags:
  --document string    Document to answer from
  --server string      Server URL; empty answers in-process
  --reuse-index        Reuse a compatible saved index (default: true)
  --output string      Output format: text or json (default: text)

Index Flags:
  --out string         Index path without suffix

Status Flags:
  --server string      Server URL (default: http://localhost:7860). Use --server "" for local configuration.
  --output string      Output format: text or json (default: text)

Examples:
  docent serve --document handbook.pdf
  docent ask --document handbook.pdf "How many vacation days do I get?"
  docent ask --server http://localhost:7860 "What is the refund policy?"
  docent chat handbook.pdf
  docent index handbook.pdf
  docent status --output json`)
}
