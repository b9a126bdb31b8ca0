package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
)

func generateSecret() (string, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func main() {
	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator for RideLink")
	fmt.Println("===========================================")
	fmt.Println()

	accessSecret, err := generateSecret()
	if err != nil {
		log.Fatalf("Failed to generate access secret: %v", err)
	}
	refreshSecret, err := generateSecret()
	if err != nil {
		log.Fatalf("Failed to generate refresh secret: %v", err)
	}

	fmt.Println("Add these to your .env file or deployment secrets:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", accessSecret)
	fmt.Printf("JWT_REFRESH_SECRET=%s\n", refreshSecret)
	fmt.Println()
	fmt.Println("These must match the identity service's signing secrets.")
	fmt.Println("Keep them safe and never commit them to version control.")
	fmt.Println("===========================================")
}
