// Package main provides admin management utilities for the catalog.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/morroware/FEC-STL-sub000/internal/bootstrap"
	"github.com/morroware/FEC-STL-sub000/internal/config"
	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
	"github.com/morroware/FEC-STL-sub000/internal/service"
	"github.com/morroware/FEC-STL-sub000/internal/storage"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/admin promote <username|email>   - Promote user to admin")
	fmt.Println("  go run ./cmd/admin demote <username|email>    - Demote user from admin")
	fmt.Println("  go run ./cmd/admin list-admins                - List all admins")
	fmt.Println("  go run ./cmd/admin recount                    - Recompute model and download counters")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	files, err := storage.NewFileStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to open upload directory: %v", err)
	}

	ctx := context.Background()
	store, err := bootstrap.OpenStore(ctx, cfg, files)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	users := service.NewUserService(store)

	switch command := os.Args[1]; command {
	case "promote", "demote":
		if len(os.Args) < 3 {
			fmt.Printf("Usage: go run ./cmd/admin %s <username|email>\n", command)
			os.Exit(1)
		}
		setAdmin(ctx, users, os.Args[2], command == "promote")

	case "list-admins":
		listAdmins(ctx, users)

	case "recount":
		recount(ctx, store)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		usage()
		os.Exit(1)
	}
}

func setAdmin(ctx context.Context, users *service.UserService, login string, admin bool) {
	user, err := users.SetAdmin(ctx, login, admin)
	if models.IsNotFound(err) {
		fmt.Printf("User %s not found\n", login)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("Failed to update user: %v", err)
	}

	if admin {
		fmt.Printf("Promoted %s (ID: %s) to admin\n", user.Username, user.ID)
	} else {
		fmt.Printf("Demoted %s (ID: %s) from admin\n", user.Username, user.ID)
	}
}

func listAdmins(ctx context.Context, users *service.UserService) {
	admins, err := users.Admins(ctx)
	if err != nil {
		log.Fatalf("Failed to fetch admins: %v", err)
	}

	if len(admins) == 0 {
		fmt.Println("No admins found in the system")
		return
	}

	fmt.Println("\nCurrent Admins:")
	fmt.Println("-------------------------------------")
	for _, admin := range admins {
		fmt.Printf("ID: %s | Username: %s | Email: %s\n", admin.ID, admin.Username, admin.Email)
	}
	fmt.Println("-------------------------------------")
}

func recount(ctx context.Context, store repository.Store) {
	if err := store.Reconcile(ctx); err != nil {
		log.Fatalf("Failed to recount: %v", err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		log.Fatalf("Failed to read stats: %v", err)
	}
	fmt.Printf("Counters rebuilt on the %s store: %d models, %d users, %d downloads\n",
		store.Backend(), stats.TotalModels, stats.TotalUsers, stats.TotalDownloads)
}
