package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/whotypes/rolekeeper/internal/config"
	"github.com/whotypes/rolekeeper/internal/data"
)

func main() {
	within := flag.Duration("within", 24*time.Hour, "also list grants expiring within this window")
	flag.Parse()

	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if !cfg.StorageEnabled() {
		fmt.Println("Usage: FIRESTORE_PROJECT_ID=<project> go run scripts/validate_data/main.go [-within 24h]")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := data.NewFirestoreClient(ctx, cfg.FirestoreProjectID, cfg.FirestoreDatabaseID)
	if err != nil {
		fmt.Printf("Failed to connect to Firestore: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	fmt.Printf("Validating temporary roles in %s...\n", cfg.FirestoreProjectID)

	index, err := store.GetAllTemporaryRoles(ctx)
	if err != nil {
		fmt.Printf("Failed to load temporary roles: %v\n", err)
		os.Exit(1)
	}
	records := index.Flatten()
	sort.Slice(records, func(a, b int) bool { return records[a].ExpiresAt.Before(records[b].ExpiresAt) })

	now := time.Now()
	v := data.GetValidator()

	var invalid, overdue int
	var upcoming []data.TemporaryRole
	for _, r := range records {
		key := data.GrantKey(r.GuildID, r.UserID, r.RoleID)
		if err := v.Struct(r); err != nil {
			fmt.Printf("❌ %s: %v\n", key, err)
			invalid++
			continue
		}
		switch {
		case r.Expired(now):
			fmt.Printf("⚠️  %s expired %s ago and has not been swept\n", key, now.Sub(r.ExpiresAt).Round(time.Second))
			overdue++
		case r.ExpiresAt.Sub(now) <= *within:
			upcoming = append(upcoming, r)
		}
	}

	if len(upcoming) > 0 {
		fmt.Printf("\nExpiring within %s:\n", *within)
		for _, r := range upcoming {
			fmt.Printf("  guild %s user %s role %s in %s\n",
				r.GuildID, r.UserID, r.RoleID, r.ExpiresAt.Sub(now).Round(time.Minute))
		}
	}

	fmt.Printf("\nValidation Summary:\n")
	fmt.Printf("  Total records: %d\n", len(records))
	fmt.Printf("  Invalid records: %d\n", invalid)
	fmt.Printf("  Overdue records: %d\n", overdue)
	fmt.Printf("  Expiring soon: %d\n", len(upcoming))

	if invalid > 0 {
		fmt.Printf("❌ Validation failed: %d records have errors\n", invalid)
		os.Exit(1)
	}

	fmt.Printf("✅ All temporary role records are valid!\n")
}
