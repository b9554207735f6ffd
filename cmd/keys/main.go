// Command keys manages the API keys accepted by the ranker when auth is
// enabled.
//
// Usage:
//
//	keys [-config path] create -name analyst-desk [-rate-limit 30] [-expires-in 720h]
//	keys [-config path] revoke -key osr_...
//	keys [-config path] list
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/postgres"
)

var errUsage = errors.New("usage")

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Usage = printUsage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	if err := run(context.Background(), cfg, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			printUsage()
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	v := apikey.NewValidator(db)

	switch args[0] {
	case "create":
		return create(ctx, v, args[1:])
	case "revoke":
		return revoke(ctx, v, args[1:])
	case "list":
		return list(ctx, v)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func create(ctx context.Context, v *apikey.Validator, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", "", "name for the key")
	rateLimit := fs.Int("rate-limit", 30, "ranking requests per limiter window")
	expiresIn := fs.Duration("expires-in", 0, "expiry, e.g. 720h (0 = never)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *name == "" {
		return errors.New("-name is required")
	}
	var expiresAt *time.Time
	if *expiresIn > 0 {
		t := time.Now().Add(*expiresIn)
		expiresAt = &t
	}

	key, err := v.CreateKey(ctx, *name, *rateLimit, expiresAt)
	if err != nil {
		return err
	}
	expires := "never"
	if expiresAt != nil {
		expires = expiresAt.Format(time.RFC3339)
	}
	fmt.Printf("key:        %s\nname:       %s\nrate limit: %d\nexpires:    %s\n", key, *name, *rateLimit, expires)
	fmt.Fprintln(os.Stderr, "The key is shown once; store it now.")
	return nil
}

func revoke(ctx context.Context, v *apikey.Validator, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	key := fs.String("key", "", "raw key to revoke")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *key == "" {
		return errors.New("-key is required")
	}
	if err := v.RevokeKey(ctx, *key); err != nil {
		return err
	}
	fmt.Println("revoked")
	return nil
}

func list(ctx context.Context, v *apikey.Validator) error {
	keys, err := v.ListKeys(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tRATE LIMIT\tCREATED\tEXPIRES")
	for _, k := range keys {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", k.ID, k.Name, k.RateLimit, k.CreatedAt.Format(time.RFC3339), expires)
	}
	return tw.Flush()
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: keys [-config path] <command> [flags]

Commands:
  create -name NAME [-rate-limit N] [-expires-in DURATION]
  revoke -key KEY
  list
`)
}
