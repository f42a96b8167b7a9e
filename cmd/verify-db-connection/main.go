// Verifies the postgres connection and the relay schema. Run after
// deployments to confirm migrations applied.
package main

import (
	"fmt"
	"log"

	"yls-backend/internal/config"
	"yls-backend/internal/db"
	"yls-backend/internal/models"
)

func main() {
	fmt.Println("🔍 Verifying database connection and relay schema...")

	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := db.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}
	defer sqlDB.Close()

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	for _, table := range []string{
		models.RelayAuthorization{}.TableName(),
		models.RelayedTransaction{}.TableName(),
	} {
		if !db.DB.Migrator().HasTable(table) {
			log.Fatalf("❌ Table %s is missing", table)
		}

		var count int64
		db.DB.Table(table).Count(&count)
		fmt.Printf("✅ Table %s exists (%d rows)\n", table, count)
	}

	// Digest column must hold 0x-prefixed 32-byte hashes
	var size int64
	err = sqlDB.QueryRow(`
		SELECT character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = 'public'
		AND table_name = 'relay_authorizations'
		AND column_name = 'digest'
	`).Scan(&size)
	if err != nil {
		log.Fatalf("Failed to query digest column size: %v", err)
	}
	if size < 66 {
		log.Fatalf("❌ relay_authorizations.digest is VARCHAR(%d), need at least VARCHAR(66)", size)
	}
	fmt.Printf("✅ relay_authorizations.digest column size: VARCHAR(%d)\n", size)

	fmt.Println("🎉 Database verification passed")
}
