package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// 백엔드 스키마 점검 도구. 필수 테이블 존재 여부와 선택적
// 이니셔티브 테이블 유무를 출력한다.
func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_SSLMODE"),
		os.Getenv("DB_TIMEZONE"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	fmt.Println("✅ Connected to database")
	fmt.Println()

	required := []string{
		"sessions", "session_players", "maps", "characters",
		"npc_templates", "npc_instances", "handouts",
		"chat_messages", "dice_rolls",
	}
	optional := []string{"initiative_entries", "initiative_roll_logs"}

	fmt.Println("📊 Required tables:")
	for _, t := range required {
		mark := "❌"
		if tableExists(db, t) {
			mark = "✅"
		}
		fmt.Printf("  %s %s\n", mark, t)
	}

	fmt.Println()
	fmt.Println("📊 Optional tables (initiative feature):")
	for _, t := range optional {
		mark := "➖ absent (feature disabled)"
		if tableExists(db, t) {
			mark = "✅ present"
		}
		fmt.Printf("  %s: %s\n", t, mark)
	}
}

func tableExists(db *gorm.DB, table string) bool {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_name = ?
		)
	`
	if err := db.Raw(query, table).Scan(&exists).Error; err != nil {
		log.Fatal("Failed to check table:", err)
	}
	return exists
}
