// Package main is stockdoc, a command line front end for composing and
// submitting warehouse import/export documents against the inventory
// service.
//
//	stockdoc [-config stockdoc.yaml] items [-warehouse COLD]
//	stockdoc [-config stockdoc.yaml] import draft.json
//	stockdoc [-config stockdoc.yaml] export [-warehouse COLD] draft.json
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	_ "github.com/joho/godotenv/autoload" // Autoload .env file.

	"dentalstock/internal/config"
	"dentalstock/internal/core/apperror"
	appctx "dentalstock/internal/core/context"
	"dentalstock/internal/core/security"
	"dentalstock/internal/domain/catalogs/item"
	"dentalstock/internal/domain/catalogs/unit"
	"dentalstock/internal/infrastructure/cache"
	"dentalstock/internal/infrastructure/inventoryapi"
	"dentalstock/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage: stockdoc [-config file] items|import|export ...")

// app holds the wiring shared by every command.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	caps     security.Capabilities
	claims   *security.Claims
	client   *inventoryapi.Client
	items    *cache.ItemCache
	resolver *unit.Resolver
	out      io.Writer
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stockdoc", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", os.Getenv("STOCKDOC_CONFIG"), "path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	a, err := newApp(*configPath, out)
	if err != nil {
		return err
	}
	defer a.log.Sync() //nolint:errcheck

	ctx = a.sessionContext(ctx)

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "items":
		return a.runItems(ctx, rest)
	case "import":
		return a.runImport(ctx, rest)
	case "export":
		return a.runExport(ctx, rest)
	}
	return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
}

func newApp(configPath string, out io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Without a token every composer refuses to open.
	var (
		caps   security.Capabilities
		claims *security.Claims
	)
	if cfg.API.Token != "" {
		caps, claims, err = security.FromToken(cfg.API.Token)
		if err != nil {
			return nil, err
		}
	}

	client, err := inventoryapi.New(inventoryapi.Config{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.API.Token,
		Timeout: cfg.API.Timeout,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}

	items := cache.NewItemCache(client, cfg.Cache.ItemTTL)
	items.OnInvalidation(func(wt item.WarehouseType, reason string) {
		log.Debugw("item list invalidated", "warehouse_type", wt, "reason", reason)
	})

	return &app{
		cfg:      cfg,
		log:      log,
		caps:     caps,
		claims:   claims,
		client:   client,
		items:    items,
		resolver: unit.NewResolver(client, log),
		out:      out,
	}, nil
}

// sessionContext starts a trace for this invocation and attaches the token's
// user, so every request and log line of the run shares one session id.
func (a *app) sessionContext(ctx context.Context) context.Context {
	ctx = appctx.WithTrace(ctx, appctx.NewSessionTrace())
	if a.claims != nil {
		ctx = appctx.WithUser(ctx, &appctx.UserContext{
			UserID:      a.claims.UserID,
			Name:        a.claims.Email,
			Permissions: a.claims.Permissions,
		})
	}
	return logger.WithLogger(ctx, a.log)
}

func printError(w io.Writer, err error) {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		fmt.Fprintln(w, "error:", err)
		return
	}
	msg := appErr.Message
	if lineNo := appErr.LineNo(); lineNo > 0 {
		msg = fmt.Sprintf("line %d, %s: %s", lineNo, appErr.Field(), msg)
	} else if field := appErr.Field(); field != "" {
		msg = fmt.Sprintf("%s: %s", field, msg)
	}
	fmt.Fprintf(w, "error [%s]: %s\n", appErr.Code, msg)
	for _, k := range slices.Sorted(maps.Keys(appErr.Details)) {
		if k == "lineNo" || k == "field" {
			continue
		}
		fmt.Fprintf(w, "  %s: %v\n", k, appErr.Details[k])
	}
	if appErr.Err != nil {
		fmt.Fprintf(w, "  cause: %v\n", appErr.Err)
	}
	if _, submitted := appErr.Details["document"]; submitted && apperror.IsRetryable(err) {
		fmt.Fprintln(w, "  the service rejected the document; adjust the draft and run again")
	}
}
