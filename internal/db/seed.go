package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedTestData resets the database and populates it with demo profiles and
// likes.
//
// Behavior:
//  1. Clears existing data in all five tables.
//  2. Creates 20 profiles (10 male, 10 female) with hashed passwords and
//     randomized last-login times.
//  3. Generates ~200 likes, and every 3rd ensures a reciprocal like so the
//     like/match engine has mutual pairs to promote.
//
// Compatible with both MySQL and SQLite.
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	for _, table := range []string{"messages", "chats", "matches", "likes", "profiles"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	switch db.Dialector.Name() {
	case "mysql":
		db.Exec("ALTER TABLE messages AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE chats AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE matches AUTO_INCREMENT = 1")
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence WHERE name IN ('messages', 'chats', 'matches')")
	}

	log.Println("Cleared existing data")

	interests := []string{
		"hiking, photography", "cooking, travel", "music, concerts",
		"reading, coffee", "yoga, running", "movies, board games",
	}
	locations := []string{"London", "Manchester", "Bristol", "Leeds", "Brighton"}

	// --- Seed Profiles (10 male, 10 female) ---
	ids := make([]string, 0, 20)
	for i := 1; i <= 20; i++ {
		hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		gender := "male"
		if i > 10 {
			gender = "female"
		}

		lastLogin := time.Now().Add(-time.Duration(r.Intn(500)) * time.Hour)
		profile := Profile{
			FullName:     fmt.Sprintf("Demo User %d", i),
			Email:        fmt.Sprintf("user%d@example.com", i),
			PasswordHash: string(hash),
			Gender:       gender,
			Age:          21 + r.Intn(20),
			Location:     locations[r.Intn(len(locations))],
			Interests:    interests[r.Intn(len(interests))],
			LastLoginAt:  &lastLogin,
		}

		if err := db.Create(&profile).Error; err != nil {
			return fmt.Errorf("failed to seed profile: %w", err)
		}
		ids = append(ids, profile.ID)
	}
	log.Println("Seeded 20 profiles.")

	// --- Seed Likes (~200) ---
	counter := 0
	for i := 0; i < 20; i++ {
		for j := 0; j < 12; j++ { // each profile likes ~12 others
			k := r.Intn(20)
			if k == i {
				continue
			}
			// like probability 70%
			if r.Intn(100) >= 70 {
				continue
			}

			// guarantee reciprocal likes every 3rd pair
			if counter%3 == 0 {
				recip := Like{ActorID: ids[k], RecipientID: ids[i]}
				db.Clauses(clause.OnConflict{DoNothing: true}).Create(&recip)
			}

			like := Like{ActorID: ids[i], RecipientID: ids[k]}
			if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
				return fmt.Errorf("failed to seed like: %w", err)
			}

			counter++
		}
	}

	return nil
}

// SeedMinimalTestData wipes the DB and inserts a deterministic dataset for
// repeatable tests.
//
// Dataset:
//   - Profiles: alice, bob, carol (fixed ids)
//   - Likes:
//   - alice → bob
//   - bob → alice (mutual with above)
//   - carol → alice (one-way)
func SeedMinimalTestData(db *gorm.DB) error {
	for _, table := range []string{"messages", "chats", "matches", "likes", "profiles"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return err
		}
	}

	profiles := []Profile{
		{ID: "user-alice", FullName: "Alice", Email: "alice@test.com", PasswordHash: "x", Gender: "female"},
		{ID: "user-bob", FullName: "Bob", Email: "bob@test.com", PasswordHash: "x", Gender: "male"},
		{ID: "user-carol", FullName: "Carol", Email: "carol@test.com", PasswordHash: "x", Gender: "female"},
	}
	if err := db.Create(&profiles).Error; err != nil {
		return err
	}

	likes := []Like{
		{ActorID: "user-alice", RecipientID: "user-bob"},
		{ActorID: "user-bob", RecipientID: "user-alice"},
		{ActorID: "user-carol", RecipientID: "user-alice"},
	}
	if err := db.Create(&likes).Error; err != nil {
		return err
	}

	return nil
}
