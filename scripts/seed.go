package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"engagement-service/internal/auth"
	"engagement-service/internal/config"
	"engagement-service/internal/db"
	"engagement-service/internal/models"
	"engagement-service/internal/store"

	"github.com/google/uuid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	if err := database.InitSchema(ctx); err != nil {
		log.Fatalf("failed to initialize schema: %v", err)
	}
	content := store.NewPostgres(database.DB)

	fmt.Println("Seeding database...")

	users := []struct {
		name   string
		email  string
		sports []string
	}{
		{"Alice", "alice@example.com", []string{"tennis"}},
		{"Bob", "bob@example.com", []string{"football", "basketball"}},
		{"Charlie", "charlie@example.com", nil},
	}

	userIDs := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		var id uuid.UUID
		err := database.QueryRowContext(ctx,
			"INSERT INTO users (name, email) VALUES ($1, $2) ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name RETURNING id",
			u.name, u.email,
		).Scan(&id)
		if err != nil {
			log.Printf("failed to create user %s: %v", u.email, err)
			continue
		}
		for _, sport := range u.sports {
			if _, err := database.ExecContext(ctx,
				"INSERT INTO favorite_sports (user_id, sport) VALUES ($1, $2) ON CONFLICT DO NOTHING", id, sport); err != nil {
				log.Printf("failed to add sport %s for %s: %v", sport, u.email, err)
			}
		}
		userIDs = append(userIDs, id)

		token, err := auth.GenerateToken(id, cfg.JWTSecret, 7*24*time.Hour, time.Now())
		if err != nil {
			log.Fatalf("failed to sign token: %v", err)
		}
		fmt.Printf("Created user: %s (ID: %s)\n  token: %s\n", u.email, id, token)
	}
	if len(userIDs) < len(users) {
		log.Fatal("not every user was created, aborting")
	}
	alice, bob, charlie := userIDs[0], userIDs[1], userIDs[2]

	for _, edge := range [][2]uuid.UUID{{alice, bob}, {charlie, alice}, {charlie, bob}} {
		if _, err := database.ExecContext(ctx,
			"INSERT INTO follows (follower_id, followee_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", edge[0], edge[1]); err != nil {
			log.Printf("failed to create follow: %v", err)
		}
	}
	fmt.Println("Alice follows Bob; Charlie follows Alice and Bob")

	now := time.Now().UTC()
	posts := []models.Post{
		{AuthorID: bob, Body: "Derby day! Who's watching?", Sport: "football", Visibility: models.VisibilityPublic, Mentions: []uuid.UUID{alice}},
		{AuthorID: alice, Body: "Five-set thriller at the open", Sport: "tennis", Visibility: models.VisibilityPublic},
		{AuthorID: charlie, Body: "Notes to self", Visibility: models.VisibilityPrivate},
	}
	for i := range posts {
		posts[i].CreatedAt = now.Add(time.Duration(i) * time.Minute)
		if err := content.CreatePost(ctx, &posts[i]); err != nil {
			log.Printf("failed to create post: %v", err)
			continue
		}
		fmt.Printf("Created post %s by %s\n", posts[i].ID, posts[i].AuthorID)
	}

	story := models.Story{
		AuthorID:  alice,
		Media:     models.Media{URL: "https://cdn.example.com/seed/court.jpg", Kind: models.MediaImage},
		Caption:   "Centre court",
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	if err := content.CreateStory(ctx, &story); err != nil {
		log.Printf("failed to create story: %v", err)
	} else {
		fmt.Println("Created sample story for Alice")
	}

	fmt.Println("Seeding completed!")
}
