package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thomas-sabu/taskrouter/pkg/config"
	"github.com/thomas-sabu/taskrouter/pkg/dispatch"
	"github.com/thomas-sabu/taskrouter/pkg/httpapi"
	"github.com/thomas-sabu/taskrouter/pkg/registry"

	// Register all LLM providers via their init() functions.
	_ "github.com/thomas-sabu/taskrouter/pkg/llm/providers"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskrouter",
		Short: "taskrouter — route tasks and documents to the right handler",
		Long: `taskrouter routes a free-text task, optionally with uploaded documents,
to the handler best suited to serve it.

A Supervisor model picks one handler from the registered catalog.
Typed documents (invoices, receipts, identity documents) go through
structured field extraction; anything else is summarized after a
one-step confirmation.`,
	}
	root.AddCommand(dispatchCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(handlersCmd())
	return root
}

// ─── dispatch ─────────────────────────────────────────────────────────────────

func dispatchCmd() *cobra.Command {
	var (
		configPath string
		files      []string
		docType    string
		token      string
		confirm    string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "dispatch <task>",
		Short: "Run one task through the pipeline and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, closeStore, err := setup(configPath)
			if err != nil {
				return err
			}
			defer closeStore()

			req := dispatch.Request{Task: args[0], DocType: docType, Token: token}
			switch confirm {
			case "":
			case "true", "false":
				v := confirm == "true"
				req.Confirm = &v
			default:
				return fmt.Errorf("--confirm must be true or false")
			}
			for _, path := range files {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read file: %w", err)
				}
				req.Files = append(req.Files, dispatch.File{
					Filename: filepath.Base(path),
					Data:     data,
				})
			}

			p := dispatch.New(cfg, store)
			res := p.Dispatch(signalContext(cmd.Context()), req)
			return printResult(res, asJSON)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to JSON config file")
	cmd.Flags().StringArrayVar(&files, "file", nil, "document to upload (repeatable)")
	cmd.Flags().StringVar(&docType, "doc-type", "", "explicit document type (invoice, receipt, identity, general)")
	cmd.Flags().StringVar(&token, "token", "", "continuation token from a previous result")
	cmd.Flags().StringVar(&confirm, "confirm", "", "explicit confirmation decision (true or false)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func printResult(res dispatch.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	switch res.Status {
	case dispatch.StatusSuccess:
		if res.Handler != "" {
			fmt.Printf("[%s]\n", res.Handler)
		}
		fmt.Println(res.Output)
		if res.NeedsConfirmation {
			fmt.Printf("\ntoken: %s\n", res.Token)
		}
		return nil
	case dispatch.StatusNoHandler:
		fmt.Println(res.Message)
		return nil
	default:
		if res.Raw != "" {
			return fmt.Errorf("%s (supervisor said %q)", res.Message, res.Raw)
		}
		return fmt.Errorf("%s", res.Message)
	}
}

// ─── serve ────────────────────────────────────────────────────────────────────

func serveCmd() *cobra.Command {
	var (
		configPath string
		listen     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, store, closeStore, err := setup(configPath)
			if err != nil {
				return err
			}
			defer closeStore()

			if listen != "" {
				cfg.Listen = listen
			}
			p := dispatch.New(cfg, store)
			srv := httpapi.NewServer(cfg, p, store)
			return srv.ListenAndServe(signalContext(cmd.Context()), cfg.Listen)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to JSON config file")
	cmd.Flags().StringVar(&listen, "listen", "", "bind address (overrides config)")
	return cmd
}

// ─── handlers ─────────────────────────────────────────────────────────────────

func handlersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handlers",
		Short: "Inspect and manage the handler registry",
	}
	cmd.AddCommand(handlersListCmd())
	cmd.AddCommand(handlersAddCmd())
	cmd.AddCommand(handlersInitCmd())
	return cmd
}

func handlersListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered handlers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, closeStore, err := setup(configPath)
			if err != nil {
				return err
			}
			defer closeStore()

			recs, err := store.ListHandlers(cmd.Context())
			if err != nil {
				return fmt.Errorf("list handlers: %w", err)
			}
			for _, rec := range recs {
				fmt.Printf("%-20s %-18s %-14s %s\n", rec.Name, rec.Kind, rec.ModelKey, rec.Instruction)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to JSON config file")
	return cmd
}

func handlersAddCmd() *cobra.Command {
	var (
		configPath  string
		instruction string
		modelKey    string
		kindStr     string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register or update a handler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, closeStore, err := setup(configPath)
			if err != nil {
				return err
			}
			defer closeStore()

			name := registry.NormalizeName(args[0])
			if !registry.ValidName(name) {
				return fmt.Errorf("handler name %q must be a valid identifier", args[0])
			}
			if instruction == "" {
				return fmt.Errorf("--instruction is required")
			}
			if _, ok := cfg.Resolve(modelKey); !ok {
				return fmt.Errorf("model key %q not present in model registry", modelKey)
			}
			kind, err := registry.ParseKind(kindStr)
			if err != nil {
				return err
			}

			rec := registry.HandlerRecord{
				Name:        name,
				Instruction: instruction,
				ModelKey:    modelKey,
				Kind:        kind,
			}
			if err := store.PutHandler(cmd.Context(), rec); err != nil {
				return fmt.Errorf("store handler: %w", err)
			}
			fmt.Printf("registered %s (%s)\n", name, kind)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to JSON config file")
	cmd.Flags().StringVar(&instruction, "instruction", "", "system instruction for the handler")
	cmd.Flags().StringVar(&modelKey, "model", "gpt-4.1-mini", "model key from the config's model registry")
	cmd.Flags().StringVar(&kindStr, "kind", "conversational", "handler kind (conversational or extraction_service)")
	return cmd
}

func handlersInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Seed the store with the stock Supervisor and extraction handlers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, closeStore, err := setup(configPath)
			if err != nil {
				return err
			}
			defer closeStore()

			for _, rec := range defaultHandlers() {
				if err := store.PutHandler(cmd.Context(), rec); err != nil {
					return fmt.Errorf("seed handler %q: %w", rec.Name, err)
				}
			}
			fmt.Println("handler store initialized")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to JSON config file")
	return cmd
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// setup loads the config and opens the handler store. An empty store path
// means an in-memory store seeded with the stock handlers, so one-shot
// dispatches work without any prior setup.
func setup(configPath string) (*config.Config, registry.Store, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	if cfg.StorePath == "" {
		store := registry.NewMemoryStore()
		for _, rec := range defaultHandlers() {
			if err := store.PutHandler(context.Background(), rec); err != nil {
				return nil, nil, nil, fmt.Errorf("seed handler %q: %w", rec.Name, err)
			}
		}
		return cfg, store, func() {}, nil
	}

	store, err := registry.OpenSQLiteStore(cfg.StorePath)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, store, func() { _ = store.Close() }, nil
}

// defaultHandlers is the stock catalog: the Supervisor plus the structured
// document extractor.
func defaultHandlers() []registry.HandlerRecord {
	return []registry.HandlerRecord{
		{
			Name: registry.SupervisorName,
			Instruction: "You are a routing supervisor. You receive a user task, " +
				"a file-upload flag, a document type, and a catalog of available handlers. " +
				"Reply with exactly one handler name from the catalog, and nothing else. " +
				"If no handler fits the task, reply with exactly NONE.",
			ModelKey: "gpt-4.1-mini",
		},
		{
			Name:        "DocExtractor",
			Instruction: "Extracts structured fields from invoices, receipts, and identity documents.",
			ModelKey:    "gpt-4.1-mini",
			Kind:        registry.KindExtractionService,
		},
	}
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ch:
			fmt.Fprintln(os.Stderr, "\n[taskrouter] interrupted — shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
