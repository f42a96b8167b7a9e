// Generates an admin TOTP secret, or prints the current code for an
// existing one. Used when provisioning operator access.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pquerna/otp/totp"
)

func main() {
	secret := os.Getenv("ADMIN_TOTP_SECRET")
	if secret == "" {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      "yls-backend",
			AccountName: "admin",
		})
		if err != nil {
			fmt.Printf("Error generating TOTP secret: %v\n", err)
			os.Exit(1)
		}
		secret = key.Secret()
		fmt.Printf("New secret: %s\n", secret)
		fmt.Printf("Provisioning URL: %s\n", key.URL())
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		fmt.Printf("Error generating TOTP code: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Current TOTP code: %s\n", code)
	fmt.Printf("Valid for: ~30 seconds\n")
}
