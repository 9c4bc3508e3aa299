package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"sumup_pos_app/internal/services"
)

func main() {
	merchant := flag.String("merchant", "", "Merchant code (defaults to SUMUP_MERCHANT_CODE)")
	flag.Parse()

	// Load envs
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found")
	}

	merchantCode := *merchant
	if merchantCode == "" {
		merchantCode = os.Getenv("SUMUP_MERCHANT_CODE")
	}
	if merchantCode == "" {
		log.Fatal("Please provide a merchant code using -merchant or SUMUP_MERCHANT_CODE")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	service := services.NewSumUpService()

	profile, err := service.GetMerchantProfile(ctx, merchantCode)
	if err != nil {
		log.Fatalf("Failed to fetch merchant profile: %v", err)
	}
	log.Printf("Connected as %s (merchant %s, currency %s)", profile.Name, profile.MerchantCode, profile.Currency)

	readers, err := service.ListReaders(ctx, merchantCode)
	if err != nil {
		log.Fatalf("Failed to list readers: %v", err)
	}
	log.Printf("Found %d reader(s):", len(readers))
	for _, r := range readers {
		log.Printf("  %s  %s  (%s)", r.ID, r.Name, r.Status)
	}
}
