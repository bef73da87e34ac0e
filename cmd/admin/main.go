// Package main provides admin role management for scribe accounts.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"scribe/internal/config"
	"scribe/internal/database"
	"scribe/internal/models"
	"scribe/internal/repository"
	"scribe/internal/validation"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage:")
		fmt.Println("  admin promote <email>   - Grant the ADMIN role")
		fmt.Println("  admin demote <email>    - Revoke the ADMIN role")
		fmt.Println("  admin list-admins       - List all admins")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	users := repository.NewUserRepository(db)
	ctx := context.Background()

	switch command := os.Args[1]; command {
	case "promote", "demote":
		if len(os.Args) < 3 {
			fmt.Printf("Usage: admin %s <email>\n", command)
			os.Exit(1)
		}
		role := models.RoleAdmin
		if command == "demote" {
			role = models.RoleUser
		}
		setRole(ctx, users, os.Args[2], role)

	case "list-admins":
		listAdmins(ctx, users)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func setRole(ctx context.Context, users repository.UserRepository, email string, role models.Role) {
	user, err := users.GetByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		log.Fatalf("Database error: %v", err)
	}
	if user == nil {
		fmt.Printf("User with email %s not found\n", email)
		os.Exit(1)
	}

	if user.Role == role {
		fmt.Printf("User %s (ID: %d) already has role %s\n", user.Email, user.ID, role)
		return
	}

	if err := users.UpdateRole(ctx, user.ID, role); err != nil {
		log.Fatalf("Failed to update role: %v", err)
	}
	fmt.Printf("Set role of %s (ID: %d) to %s\n", user.Email, user.ID, role)
}

func listAdmins(ctx context.Context, users repository.UserRepository) {
	admins, err := users.ListAdmins(ctx)
	if err != nil {
		log.Fatalf("Failed to fetch admins: %v", err)
	}

	if len(admins) == 0 {
		fmt.Println("No admins found")
		return
	}

	fmt.Println("Current admins:")
	for _, admin := range admins {
		fmt.Printf("ID: %d | Name: %s | Email: %s\n", admin.ID, admin.Name, admin.Email)
	}
}
