package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecret generates a cryptographically secure random secret
func GenerateSecret(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ServiceSecrets are the values an operator has to provision before first start
type ServiceSecrets struct {
	JWTSecret     string
	MerchantToken string
}

// GenerateServiceSecrets creates a 256-bit JWT signing key and a 256-bit
// payment merchant token
func GenerateServiceSecrets() (*ServiceSecrets, error) {
	jwtSecret, err := GenerateSecret(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	token, err := GenerateSecret(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate merchant token: %w", err)
	}
	return &ServiceSecrets{JWTSecret: jwtSecret, MerchantToken: token}, nil
}
