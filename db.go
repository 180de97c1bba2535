package main

import (
	"log"
	"os"
	"strings"

	"sibansos/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var db *gorm.DB

func initDB() {
	var err error
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN is not set. This project requires a Postgres DSN in DB_DSN.")
	}
	db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect postgres database:", err)
	}
	// Control schema migrations with env DB_AUTO_MIGRATE (default true). Any permission errors will be logged and ignored.
	shouldMigrate := true
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		lv := strings.ToLower(v)
		if lv == "false" || lv == "0" || lv == "no" {
			shouldMigrate = false
		}
	}
	// Ensure the roles master table exists first and seed it so users FK can be applied safely.
	if shouldMigrate {
		if err := db.AutoMigrate(&models.Role{}); err != nil {
			log.Printf("migration warning (roles): %v", err)
		}
	}
	seedRoles()

	if shouldMigrate {
		// Migrate models individually so a failure on one doesn't block others.
		// Parents before children so FKs can be applied.
		for _, m := range []any{
			&models.User{},
			&models.RefreshToken{},
			&models.Keluarga{},
			&models.AnggotaKeluarga{},
			&models.Bantuan{},
			&models.DistribusiBantuan{},
			&models.BuktiPenyaluran{},
			&models.Geodata{},
			&models.LogAktivitas{},
		} {
			if err := db.AutoMigrate(m); err != nil {
				log.Printf("migration warning (%T): %v", m, err)
			}
		}
		if err := ensureDistribusiBulanIndex(); err != nil {
			log.Printf("warning: ensuring distribusi (bantuan_id, bulan) index failed: %v", err)
		}
	}
	seedDB()
}

// ensureDistribusiBulanIndex guarantees the composite unique index that makes
// a racing second activation fail instead of inserting duplicate month rows
// (it may be missing when the table predates the tagged index).
func ensureDistribusiBulanIndex() error {
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_bantuan_bulan
		ON distribusi_bantuans (bantuan_id, bulan)`).Error
}

func seedRoles() {
	roles := []models.Role{
		{Name: "administrator", Description: "full access"},
		{Name: "petugas", Description: "petugas pendamping lapangan"},
	}
	for _, r := range roles {
		var cnt int64
		db.Model(&models.Role{}).Where("name = ?", r.Name).Count(&cnt)
		if cnt == 0 {
			db.Create(&r)
		}
	}
}

func seedDB() {
	seedRoles()

	// Check if admin user exists
	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count == 0 {
		var role models.Role
		if err := db.Where("name = ?", "administrator").First(&role).Error; err != nil {
			log.Printf("failed to find administrator role: %v", err)
		}
		rid := role.ID
		admin := models.User{
			Username:    "admin",
			NamaLengkap: "Administrator",
			RoleID:      &rid,
		}
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
		admin.HashedPassword = hashedPassword
		db.Create(&admin)
		log.Println("Seeded admin user: username=admin, password=admin123")
	}
	ensureUploadBase()
}

// ensureUploadBase creates the base directory for bukti penyaluran uploads.
func ensureUploadBase() {
	base := uploadBaseDir()
	if err := os.MkdirAll(base, 0755); err != nil {
		log.Printf("failed to create upload base dir %s: %v", base, err)
	}
}

// uploadBaseDir returns the base directory for local uploads (configurable via UPLOAD_BASE env)
func uploadBaseDir() string {
	if v := os.Getenv("UPLOAD_BASE"); v != "" {
		return v
	}
	return "uploads"
}
