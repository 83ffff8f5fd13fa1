//go:build ignore
// +build ignore

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"lender-policy-review/internal/config"
	"lender-policy-review/internal/services/database"
	"lender-policy-review/internal/services/extraction"
	s3service "lender-policy-review/internal/services/s3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("🔍 Testing connections...")
	fmt.Println()

	fmt.Println("1️⃣  Checking Environment Variables:")
	checkEnvVar("POLICY_API_BASE_URL")
	checkEnvVar("AWS_REGION")
	checkEnvVar("S3_BUCKET")
	checkEnvVar("DATABASE_URL")
	checkEnvVar("SES_SENDER_EMAIL")
	checkEnvVar("REVIEW_NOTIFY_EMAILS")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("2️⃣  Testing Extraction API:")
	client := extraction.NewClient(cfg.APIBaseURL)
	if list, err := client.List(ctx); err != nil {
		fmt.Printf("   ❌ %s: %s\n", cfg.APIBaseURL, extraction.Message(err))
	} else {
		fmt.Printf("   ✅ %s: %d extractions\n", cfg.APIBaseURL, list.Total)
	}
	fmt.Println()

	fmt.Println("3️⃣  Testing Database Connection:")
	if db, err := database.New(ctx, cfg); err != nil {
		fmt.Printf("   ❌ Database connection failed: %v\n", err)
	} else {
		fmt.Println("   ✅ Database connection successful!")
		db.Close()
	}
	fmt.Println()

	fmt.Println("4️⃣  Testing S3 Bucket:")
	if store, err := s3service.NewFromConfig(ctx, cfg); err != nil {
		fmt.Printf("   ❌ AWS config failed: %v\n", err)
	} else if _, err := store.Exists(ctx, cfg.S3IncomingPrefix); err != nil {
		fmt.Printf("   ❌ Bucket %s not reachable: %v\n", store.Bucket(), err)
	} else {
		fmt.Printf("   ✅ Bucket %s reachable\n", store.Bucket())
	}
	fmt.Println()

	fmt.Println("✅ Connection tests complete!")
}

func checkEnvVar(name string) {
	value := os.Getenv(name)
	if value == "" {
		fmt.Printf("   ❌ %s: NOT SET\n", name)
		return
	}
	// Mask sensitive values
	masked := value
	if len(value) > 8 && name == "DATABASE_URL" {
		masked = value[:8] + "..." + value[len(value)-4:]
	}
	fmt.Printf("   ✅ %s: %s\n", name, masked)
}
