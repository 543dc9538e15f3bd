package main

import (
	"fmt"
	"log"
	"time"

	"github.com/mhm-assoc/memberpass/internal/config"
	"github.com/mhm-assoc/memberpass/internal/credential"
	"github.com/mhm-assoc/memberpass/internal/database"
	"github.com/mhm-assoc/memberpass/internal/models"
	"github.com/mhm-assoc/memberpass/internal/utils"
)

func main() {
	fmt.Println("🌱 memberpass Demo Data Seeder")

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("✅ Connected to database")

	fmt.Println("🔨 Running database migrations...")
	err = db.AutoMigrate(
		&models.UserAuth{},
		&models.Member{},
		&models.Batch{},
		&models.BatchResult{},
		&models.ScanLog{},
	)
	if err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	fmt.Println("✅ Migrations complete")

	var memberCount int64
	db.Model(&models.Member{}).Count(&memberCount)
	if memberCount > 0 {
		fmt.Printf("⚠️ Database already has %d members. Clear it first? (y/N): ", memberCount)
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("❌ Aborted. Database not modified.")
			return
		}

		fmt.Println("🗑️ Clearing existing data...")
		db.Exec("TRUNCATE TABLE scan_logs CASCADE")
		db.Exec("TRUNCATE TABLE batch_results CASCADE")
		db.Exec("TRUNCATE TABLE batches CASCADE")
		db.Exec("TRUNCATE TABLE members CASCADE")
		db.Exec("TRUNCATE TABLE user_auths CASCADE")
		fmt.Println("✅ Data cleared")
	}

	fmt.Println("👤 Creating demo admin (admin@example.org / demo-admin-pw)...")
	hash, err := utils.HashPassword("demo-admin-pw")
	if err != nil {
		log.Fatalf("❌ Failed to hash password: %v", err)
	}
	admin := models.UserAuth{
		Username: "admin",
		Email:    "admin@example.org",
		Password: hash,
		Name:     "Demo Admin",
		Role:     models.RoleAdmin,
	}
	if err := db.Create(&admin).Error; err != nil {
		log.Fatalf("❌ Failed to create admin: %v", err)
	}

	fmt.Println("👥 Creating demo members...")
	year := credential.CurrentValidity()
	dob := time.Date(1990, 4, 12, 0, 0, 0, 0, time.UTC)

	demo := []struct {
		first, last, email, status string
		seq                        int
	}{
		{"Alice", "Martin", "alice.martin@example.org", models.MemberStatusActive, 1},
		{"Bruno", "Lefevre", "bruno.lefevre@example.org", models.MemberStatusActive, 2},
		{"Chloe", "Dubois", "chloe.dubois@example.org", models.MemberStatusSuspended, 3},
		{"David", "Moreau", "david.moreau@example.org", models.MemberStatusPending, 0},
		{"Emma", "Roussel", "emma.roussel@example.org", models.MemberStatusInactive, 4},
	}

	for _, d := range demo {
		m := models.Member{
			FirstName:   d.first,
			LastName:    d.last,
			Email:       d.email,
			DateOfBirth: &dob,
			MemberType:  "regular",
			Status:      d.status,
		}
		if d.seq > 0 {
			number := fmt.Sprintf("%s-%s-%05d", cfg.Association, year, d.seq)
			m.MemberNumber = &number
		}
		if err := db.Create(&m).Error; err != nil {
			log.Printf("⚠️ Failed to create member %s: %v", d.email, err)
		} else {
			fmt.Printf("   ✓ %s %s (%s)\n", d.first, d.last, d.status)
		}
	}

	fmt.Println("✅ Demo data ready. Start the API and log in with the demo admin.")
}
