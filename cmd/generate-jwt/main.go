// Mints an admin JWT directly from ADMIN_JWT_SECRET, bypassing the login
// flow. Handy for curl-testing the admin endpoints.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminClaims mirrors the claims issued by the login endpoint
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func main() {
	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		fmt.Println("ADMIN_JWT_SECRET is not set")
		os.Exit(1)
	}

	now := time.Now()
	claims := AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "yls-backend",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fmt.Printf("Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("============================================================")
	fmt.Printf("Admin JWT (valid 1h):\n%s\n", token)
	fmt.Println("============================================================")
	fmt.Println("Usage: curl -H \"Authorization: Bearer <token>\" http://localhost:3001/api/admin/relayer/status")
}
