//go:build ignore

// Development seed tool that fills the database with synthetic page views:
//
//	go run ./scripts/seed-views.go -days 90 -views 5000
//
// After seeding, run cmd/rollup to populate the daily summaries.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/blogpulse/blogpulse/internal/model"
	"github.com/blogpulse/blogpulse/internal/repository"
)

var authors = []string{"alice", "bob", "carol", "dave", "erin", "frank"}

var countries = []string{"US", "UK", "DE", "FR", "IN", "BR", "JP", ""}

var titleWords = []string{
	"Go", "Postgres", "Redis", "Concurrency", "Testing", "Profiling",
	"Generics", "Streaming", "Caching", "Indexes", "Migrations", "Pipelines",
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		days        = flag.Int("days", 90, "spread views over this many trailing days")
		views       = flag.Int("views", 5000, "number of view events to insert")
		blogs       = flag.Int("blogs", 40, "number of distinct blogs")
		seed        = flag.Int64("seed", 42, "random seed")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	rng := rand.New(rand.NewSource(*seed))
	now := time.Now().UTC()

	// Stable per-blog dimensions so the Top queries have structure.
	type blog struct {
		id     int64
		title  string
		author string
	}
	catalog := make([]blog, *blogs)
	for i := range catalog {
		catalog[i] = blog{
			id:     int64(i + 1),
			title:  fmt.Sprintf("%s %s #%d", titleWords[rng.Intn(len(titleWords))], titleWords[rng.Intn(len(titleWords))], i+1),
			author: authors[i%len(authors)],
		}
	}

	events := repository.NewEventRepository(repo)
	batch := make([]*model.Event, 0, 500)
	inserted := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := events.BulkInsert(ctx, batch); err != nil {
			return err
		}
		inserted += len(batch)
		batch = batch[:0]
		return nil
	}

	for i := 0; i < *views; i++ {
		// Zipf-ish popularity: low blog IDs get most of the traffic.
		b := catalog[int(float64(len(catalog))*rng.Float64()*rng.Float64())]
		viewedAt := now.Add(-time.Duration(rng.Intn(*days*24*60)) * time.Minute)

		e := &model.Event{
			ID:             ulid.Make().String(),
			EventID:        ulid.Make().String(),
			BlogID:         b.id,
			BlogTitle:      b.title,
			AuthorUsername: b.author,
			CountryCode:    countries[rng.Intn(len(countries))],
			ViewedAt:       viewedAt,
		}
		if rng.Intn(3) == 0 {
			e.ViewerID = uuid.New().String()
		}
		batch = append(batch, e)

		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				fmt.Fprintln(os.Stderr, "insert events:", err)
				os.Exit(1)
			}
		}
	}
	if err := flush(); err != nil {
		fmt.Fprintln(os.Stderr, "insert events:", err)
		os.Exit(1)
	}

	fmt.Printf("inserted %d view events across %d blogs over %d days\n", inserted, *blogs, *days)
}
