// Command seed fills the database with demo users and posts.
package main

import (
	"context"
	"flag"
	"log"

	"scribe/internal/config"
	"scribe/internal/database"
	"scribe/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	numPosts := flag.Int("posts", 100, "Number of posts to create")
	maxDays := flag.Int("days", 90, "Spread creation times over this many past days")
	randSeed := flag.Int64("rand", 0, "Fixed random seed for reproducible content (0 = clock)")
	shouldClean := flag.Bool("clean", false, "Delete all existing rows before seeding")
	flag.Parse()

	log.Printf("Seeding %d users, %d posts, clean=%v", *numUsers, *numPosts, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	ctx := context.Background()
	s := seed.NewSeeder(db, seed.Options{
		NumUsers: *numUsers,
		NumPosts: *numPosts,
		MaxDays:  *maxDays,
		RandSeed: *randSeed,
	})

	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	summary, err := s.Run(ctx)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Created %d users and %d posts", summary.Users, summary.Posts)
	log.Printf("All seeded users have the password: %s", seed.DemoPassword)
}
