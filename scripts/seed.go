package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"shareit/internal/config"
	"shareit/internal/database"
	"shareit/internal/models"
	"shareit/internal/service"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// SeedFile is the layout of seed.yaml: users with the items they own.
type SeedFile struct {
	Users []SeedUser `yaml:"users"`
}

type SeedUser struct {
	Name  string        `yaml:"name"`
	Email string        `yaml:"email"`
	Items []models.Item `yaml:"items"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		seedPath = flag.String("seed", "configs/seed.yaml", "path to seed.yaml")
		dbPath   = flag.String("db", "./data/shareit.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*seedPath)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var seed SeedFile
	if err = yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}
	if len(seed.Users) == 0 {
		return fmt.Errorf("no users in yaml")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	nop := zerolog.Nop()
	users := service.NewUserService(db, &nop)
	existing, err := users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	byEmail := make(map[string]models.User, len(existing))
	for _, u := range existing {
		byEmail[strings.ToLower(u.Email)] = u
	}

	// события при сидировании никуда не уходят
	bookings, err := service.NewBookingService(db, nil, nil, config.BookingConfig{}, &nop)
	if err != nil {
		return err
	}
	items := service.NewItemService(db, bookings, nil, 0, &nop)

	usersCreated, itemsCreated := 0, 0
	for _, su := range seed.Users {
		owner, ok := byEmail[strings.ToLower(strings.TrimSpace(su.Email))]
		if !ok {
			created, err := users.CreateUser(ctx, models.User{Name: su.Name, Email: su.Email})
			if err != nil {
				return fmt.Errorf("create user %s: %w", su.Email, err)
			}
			owner = *created
			usersCreated++
		}

		owned, err := db.GetItemsByOwner(ctx, owner.ID, 0, 1000)
		if err != nil {
			return fmt.Errorf("items of %s: %w", su.Email, err)
		}
		names := make(map[string]bool, len(owned))
		for _, it := range owned {
			names[strings.ToLower(it.Name)] = true
		}

		for _, it := range su.Items {
			if names[strings.ToLower(it.Name)] {
				continue
			}
			if _, err := items.CreateItem(ctx, owner.ID, it); err != nil {
				if kind, ok := models.KindOf(err); ok && kind == models.KindIllegalArgument {
					logger.Warn().Err(err).Str("item", it.Name).Msg("skip invalid item")
					continue
				}
				return fmt.Errorf("create item %s: %w", it.Name, err)
			}
			itemsCreated++
		}
	}

	fmt.Printf("done: users=%d items=%d\n", usersCreated, itemsCreated)
	return nil
}
