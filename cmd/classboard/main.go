package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"classboard/internal/app"
	"classboard/internal/auth"
	"classboard/internal/config"
	"classboard/pkg/types"
)

const usage = `usage: classboard [serve|token] [flags]

  serve   run the whiteboard relay (default)
  token   mint a strict-mode join token
`

// Graceful shutdown on SIGINT/SIGTERM ensures proper resource cleanup
func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
func run(args []string, stdout io.Writer) error {
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		return serve(args)
	case "token":
		return mintToken(args, stdout)
	case "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	configPath := fs.String("config", os.Getenv(config.EnvPrefix+"_CONFIG_FILE"), "path to a json, yaml or toml config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}

	sig := <-signalCh
	log.Printf("Received signal %v, shutting down gracefully", sig)

	// FUNCTIONAL DISCOVERY: Timeout context prevents hanging shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	return application.Stop(shutdownCtx)
}

func mintToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.String("user", "", "user id (required)")
	name := fs.String("name", "", "display name")
	role := fs.String("role", string(types.RoleStudent), "teacher or student")
	channel := fs.String("channel", "", "restrict the token to one channel; empty allows any")
	ttl := fs.Duration("ttl", 0, "token lifetime; defaults to security.token_ttl")

	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("-user is required")
	}
	r := types.Role(*role)
	if !r.Valid() {
		return fmt.Errorf("invalid role %q", *role)
	}

	lifetime := cfg.Security.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	issuer, err := auth.NewIssuer(cfg.Security.JWTSecret, cfg.Security.Issuer, lifetime)
	if err != nil {
		return fmt.Errorf("cannot mint token: %w", err)
	}
	token, err := issuer.Issue(*userID, *name, r, *channel)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	log.Printf("Issued %s token for %s (expires %s)", r, *userID, time.Now().Add(lifetime).Format(time.RFC3339))
	return nil
}
