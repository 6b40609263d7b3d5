package main

import (
	"fmt"
	"log"

	"github.com/smarttransit/seat-booking-engine/internal/utils"
)

func main() {
	fmt.Println("===========================================")
	fmt.Println("Secret Generator for the seat booking engine")
	fmt.Println("===========================================")
	fmt.Println()

	secrets, err := utils.GenerateServiceSecrets()
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("Secrets generated successfully!")
	fmt.Println()
	fmt.Println("Add these to your .env file or deployment secrets:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secrets.JWTSecret)
	fmt.Printf("PAYMENT_MERCHANT_TOKEN=%s\n", secrets.MerchantToken)
	fmt.Println()
	fmt.Println("PAYMENT_MERCHANT_TOKEN must match the token configured with the payment provider.")
	fmt.Println("Keep these secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}
