package seed

import (
	"context"
	"fmt"
	"log"

	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
	"github.com/morroware/FEC-STL-sub000/internal/service"
)

// Options configuration for the seeder
type Options struct {
	NumUsers  int
	NumModels int
	// MaxEngagement caps the views, downloads and likes added per model.
	MaxEngagement int
	SeedOptions
}

// Result counts what a Seed run created.
type Result struct {
	Categories int
	Users      int
	Models     int
	Favorites  int
}

// Seed fills the catalog with demo users, models, counters and favorites.
func Seed(ctx context.Context, store repository.Store, uploads *service.UploadService, opts Options) (*Result, error) {
	log.Printf("Seeding %d users and %d models into the %s store", opts.NumUsers, opts.NumModels, store.Backend())
	res := &Result{}

	created, err := Categories(ctx, store.Categories())
	if err != nil {
		return nil, err
	}
	res.Categories = created

	cats, err := store.Categories().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if len(cats) == 0 {
		return nil, fmt.Errorf("no categories to put models in")
	}

	f := NewFactory(store, uploads, opts.SeedOptions)

	users := make([]*models.User, 0, opts.NumUsers)
	for i := 0; i < opts.NumUsers; i++ {
		u, err := f.CreateUser(ctx)
		if err != nil {
			return res, err
		}
		users = append(users, u)
	}
	res.Users = len(users)
	log.Printf("%d users created", res.Users)
	if len(users) == 0 {
		return res, nil
	}

	catalog := make([]*models.Model, 0, opts.NumModels)
	for i := 0; i < opts.NumModels; i++ {
		owner := users[f.faker.Number(0, len(users)-1)]
		cat := cats[f.faker.Number(0, len(cats)-1)]
		m, err := f.CreateModel(ctx, owner, cat.ID)
		if err != nil {
			return res, err
		}
		catalog = append(catalog, m)
	}
	res.Models = len(catalog)
	log.Printf("%d models created", res.Models)

	for _, m := range catalog {
		if err := f.engage(ctx, m.ID, opts.MaxEngagement); err != nil {
			return res, err
		}
	}

	for _, u := range users {
		for _, m := range catalog {
			if m.UserID == u.ID || f.faker.Number(1, 4) != 1 {
				continue
			}
			if err := store.Users().ToggleFavorite(ctx, u.ID, m.ID); err != nil {
				return res, fmt.Errorf("favorite %s for %s: %w", m.ID, u.Username, err)
			}
			res.Favorites++
		}
	}
	log.Printf("%d favorites created", res.Favorites)

	return res, nil
}

// engage bumps the counters of a model by random amounts up to limit.
func (f *Factory) engage(ctx context.Context, modelID string, limit int) error {
	if limit <= 0 {
		return nil
	}
	for _, stat := range []repository.Stat{repository.StatViews, repository.StatDownloads, repository.StatLikes} {
		for n := f.faker.Number(0, limit); n > 0; n-- {
			if err := f.store.Models().IncrementStat(ctx, modelID, stat); err != nil {
				return fmt.Errorf("increment %s of %s: %w", stat, modelID, err)
			}
		}
	}
	return nil
}
