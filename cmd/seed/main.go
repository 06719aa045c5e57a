// Command main fills the catalog with demo content.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/morroware/FEC-STL-sub000/internal/bootstrap"
	"github.com/morroware/FEC-STL-sub000/internal/config"
	"github.com/morroware/FEC-STL-sub000/internal/seed"
	"github.com/morroware/FEC-STL-sub000/internal/service"
	"github.com/morroware/FEC-STL-sub000/internal/storage"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	numModels := flag.Int("models", 60, "Number of models to create")
	engagement := flag.Int("engagement", 25, "Upper bound of views, downloads and likes per model")
	randSeed := flag.Int64("seed", 0, "Random seed, 0 picks one from the clock")
	password := flag.String("password", seed.DefaultPassword, "Password of the generated users")
	flag.Parse()

	log.Println("Catalog Seeder")
	log.Println("==============")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	files, err := storage.NewFileStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to open upload directory: %v", err)
	}

	ctx := context.Background()
	store, err := bootstrap.InitRuntime(ctx, cfg, files, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	uploads := service.NewUploadService(store, files, nil, service.LimitsFromConfig(cfg))
	res, err := seed.Seed(ctx, store, uploads, seed.Options{
		NumUsers:      *numUsers,
		NumModels:     *numModels,
		MaxEngagement: *engagement,
		SeedOptions:   seed.SeedOptions{Password: *password, Seed: *randSeed},
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Done: %d categories, %d users, %d models, %d favorites",
		res.Categories, res.Users, res.Models, res.Favorites)
	log.Printf("All demo users have the password: %s", *password)
}
