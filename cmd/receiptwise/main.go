package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/receiptwise/receiptwise/internal/extraction"
	"github.com/receiptwise/receiptwise/internal/receipt"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	fs := ff.NewFlagSet("receiptwise")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		baseURL     = fs.StringLong("base-url", "http://localhost:8080", "Externally visible base URL (for local storage file links)")
		dbPath      = fs.StringLong("db", "receiptwise.db", "Database file path")
		storageType = fs.StringLong("storage", "local", "Blob storage backend: 'local' or 's3'")
		storagePath = fs.StringLong("storage-path", "./receipts", "Local storage directory path")
		s3Endpoint  = fs.StringLong("s3-endpoint", "", "S3 endpoint URL (empty for AWS; set for localstack/minio)")
		s3Region    = fs.StringLong("s3-region", "us-east-1", "S3 region")
		s3Bucket    = fs.StringLong("s3-bucket", "receipts", "S3 bucket name")
		s3AccessKey = fs.StringLong("s3-access-key", "", "S3 access key (or use the default AWS credential chain)")
		s3SecretKey = fs.StringLong("s3-secret-key", "", "S3 secret key")
		provider    = fs.StringLong("provider", "gemini", "Default AI provider: 'gemini', 'openai' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set RECEIPTWISE_GEMINI_KEY)")
		geminiModel = fs.StringLong("gemini-model", "gemini-flash-latest", "Google Gemini model name")
		openaiKey   = fs.StringLong("openai-key", "", "OpenAI API key (or set RECEIPTWISE_OPENAI_KEY)")
		openaiURL   = fs.StringLong("openai-url", "", "OpenAI-compatible API base URL (empty for api.openai.com)")
		openaiModel = fs.StringLong("openai-model", "gpt-4o", "OpenAI model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl, bakllava)")
		editPolicy  = fs.StringLong("edit-policy", "reject", "What to do with an edit whose sums do not reconcile: 'reject' or 'flag'")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPTWISE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	policy := receipt.EditPolicy(*editPolicy)
	if policy != receipt.EditPolicyReject && policy != receipt.EditPolicyFlag {
		slog.Error("Invalid edit policy", "policy", *editPolicy, "valid", "reject or flag")
		os.Exit(1)
	}

	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// A missing API key is a degraded but valid state: the provider stays
	// registered and reports itself unconfigured per call.
	registry := extraction.NewRegistry(extraction.RegistryConfig{Default: *provider})

	slog.Info("Initializing Gemini provider...", "model", *geminiModel, "configured", *geminiKey != "")
	gemini, err := extraction.NewGemini(*geminiKey, *geminiModel)
	if err != nil {
		slog.Error("Failed to initialize Gemini", "error", err)
		os.Exit(1)
	}
	registry.Register(gemini)

	slog.Info("Initializing OpenAI provider...", "model", *openaiModel, "configured", *openaiKey != "")
	registry.Register(extraction.NewOpenAI(*openaiKey, *openaiURL, *openaiModel))

	slog.Info("Initializing Ollama provider...", "url", *ollamaURL, "model", *ollamaModel)
	registry.Register(extraction.NewOllama(*ollamaURL, *ollamaModel))
	defer registry.Close()

	if _, err := registry.Resolve(""); err != nil {
		slog.Error("Default provider is not registered", "provider", *provider)
		os.Exit(1)
	}

	slog.Info("Initializing storage...", "backend", *storageType)
	var (
		store    receipt.Storage
		filesDir string
	)
	switch *storageType {
	case "local":
		local, err := receipt.NewLocalStorage(*storagePath, *baseURL)
		if err != nil {
			slog.Error("Failed to initialize local storage", "error", err)
			os.Exit(1)
		}
		store = local
		filesDir = local.Dir()
	case "s3":
		s3Store, err := receipt.NewS3Storage(context.Background(), receipt.S3Config{
			Endpoint:  *s3Endpoint,
			Region:    *s3Region,
			Bucket:    *s3Bucket,
			AccessKey: *s3AccessKey,
			SecretKey: *s3SecretKey,
		})
		if err != nil {
			slog.Error("Failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
		store = s3Store
	default:
		slog.Error("Invalid storage backend", "type", *storageType, "valid", "local or s3")
		os.Exit(1)
	}

	service := receipt.NewService(db, store, extraction.NewExtractor(registry), policy)

	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(service, basicAuth, filesDir)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "default_provider", *provider, "edit_policy", *editPolicy)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
