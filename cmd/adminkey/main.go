package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/auth/adminkey"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/postgres"
)

// adminkey manages the keys that unlock jobmap's admin endpoints when
// admin.keys is "postgres". The hash command prints the digest to put in
// admin.keyHashes for static keys.
//
// Usage:
//
//	adminkey create --name "ops" [--expires-in 720h]
//	adminkey revoke --id <key-id>
//	adminkey list
//	adminkey hash --key <raw-key>
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	if args[0] == "hash" {
		cmdHash(args[1:])
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	st := adminkey.NewStore(db.DB)
	if err := st.EnsureSchema(ctx); err != nil {
		slog.Error("failed to prepare admin_keys table", "error", err)
		os.Exit(1)
	}

	switch args[0] {
	case "create":
		cmdCreate(ctx, st, args[1:])
	case "revoke":
		cmdRevoke(ctx, st, args[1:])
	case "list":
		cmdList(ctx, st)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func cmdCreate(ctx context.Context, st *adminkey.Store, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "name for the key")
	expiresIn := fs.Duration("expires-in", 0, "expiry duration, e.g. 720h (optional)")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: --name is required")
		os.Exit(1)
	}
	var expiresAt *time.Time
	if *expiresIn > 0 {
		t := time.Now().Add(*expiresIn).UTC()
		expiresAt = &t
	}

	key, info, err := st.Create(ctx, *name, expiresAt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Admin key created. It cannot be retrieved again.")
	fmt.Println()
	fmt.Printf("  Key:     %s\n", key)
	fmt.Printf("  ID:      %s\n", info.ID)
	fmt.Printf("  Name:    %s\n", info.Name)
	if expiresAt != nil {
		fmt.Printf("  Expires: %s\n", expiresAt.Format(time.RFC3339))
	} else {
		fmt.Println("  Expires: never")
	}
}

func cmdRevoke(ctx context.Context, st *adminkey.Store, args []string) {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	id := fs.String("id", "", "id of the key to revoke")
	fs.Parse(args)

	if *id == "" {
		fmt.Fprintln(os.Stderr, "error: --id is required")
		os.Exit(1)
	}
	if err := st.Revoke(ctx, *id); err != nil {
		fmt.Fprintf(os.Stderr, "failed to revoke key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Admin key revoked.")
}

func cmdList(ctx context.Context, st *adminkey.Store) {
	keys, err := st.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list keys: %v\n", err)
		os.Exit(1)
	}
	if len(keys) == 0 {
		fmt.Println("No active admin keys.")
		return
	}

	fmt.Printf("%-36s  %-20s  %-20s  %s\n", "ID", "Name", "Created", "Expires")
	for _, k := range keys {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Printf("%-36s  %-20s  %-20s  %s\n", k.ID, k.Name, k.CreatedAt.Format(time.RFC3339), expires)
	}
	fmt.Printf("\nTotal: %d active key(s)\n", len(keys))
}

func cmdHash(args []string) {
	fs := flag.NewFlagSet("hash", flag.ExitOnError)
	key := fs.String("key", "", "raw key to hash")
	fs.Parse(args)

	if *key == "" {
		fmt.Fprintln(os.Stderr, "error: --key is required")
		os.Exit(1)
	}
	fmt.Println(adminkey.HashKey(*key))
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: adminkey [-config path] <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  create   Create a new admin key")
	fmt.Fprintln(os.Stderr, "  revoke   Revoke an admin key by id")
	fmt.Fprintln(os.Stderr, "  list     List active admin keys")
	fmt.Fprintln(os.Stderr, "  hash     Print the SHA-256 digest of a key for admin.keyHashes")
}
