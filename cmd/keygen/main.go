// Package main provides a CLI for generating issuer keys and scanner tokens
// for local development. Scanner tokens default to the dev secret and will
// NOT work against a production deployment.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	jwttoken "racepass/internal/jwt_token"
	"racepass/internal/platform/config"
)

const defaultScannerIssuer = "racepass"

type keyOutput struct {
	PrivateKey string            `json:"private_key"`
	Address    string            `json:"address"`
	Usage      map[string]string `json:"usage"`
}

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	ExpiresIn string            `json:"expires_in"`
	Claims    map[string]any    `json:"claims,omitempty"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	issuerCmd := flag.NewFlagSet("issuer", flag.ExitOnError)
	scannerCmd := flag.NewFlagSet("scanner", flag.ExitOnError)

	issuerJSON := issuerCmd.Bool("json", false, "Output as JSON")

	scannerID := scannerCmd.String("scanner-id", "", "Scanner device ID. Generated if empty.")
	scannerVenue := scannerCmd.String("venue", "", "Venue the scanner is deployed at")
	scannerSecret := scannerCmd.String("secret", config.DefaultJWTSecret, "HMAC secret (SCANNER_JWT_SECRET)")
	scannerIssuer := scannerCmd.String("issuer", defaultScannerIssuer, "Token issuer (SCANNER_JWT_ISSUER)")
	scannerTTL := scannerCmd.Duration("ttl", config.DefaultScannerTTL, "Token time-to-live")
	scannerJSON := scannerCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "issuer":
		issuerCmd.Parse(os.Args[2:]) //nolint:errcheck // ExitOnError
		generateIssuerKey(*issuerJSON)
	case "scanner":
		scannerCmd.Parse(os.Args[2:]) //nolint:errcheck // ExitOnError
		generateScannerToken(*scannerID, *scannerVenue, *scannerSecret, *scannerIssuer, *scannerTTL, *scannerJSON)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`keygen - Generate keys and tokens for RacePass

Usage:
  keygen <command> [flags]

Commands:
  issuer    Generate a fresh secp256k1 issuer key and print its address
  scanner   Generate a scanner bearer token (JWT)

Examples:
  # New issuer key for ISSUER_PRIVATE_KEY
  keygen issuer

  # Scanner token for a venue, valid for one race day
  keygen scanner -venue "city-marathon" -ttl 10h

  # Output as JSON
  keygen scanner -json

Use "keygen <command> -h" for more information about a command.`)
}

func generateIssuerKey(jsonOutput bool) {
	key, err := crypto.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating key: %v\n", err)
		os.Exit(1)
	}
	privateHex := "0x" + hex.EncodeToString(crypto.FromECDSA(key))
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	if jsonOutput {
		printJSON(keyOutput{
			PrivateKey: privateHex,
			Address:    address,
			Usage: map[string]string{
				"env": "ISSUER_PRIVATE_KEY=" + privateHex,
			},
		})
		return
	}
	fmt.Println("Issuer Key (secp256k1)")
	fmt.Println("======================")
	fmt.Printf("Address:     %s\n", address)
	fmt.Printf("Private Key: %s\n", privateHex)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  export ISSUER_PRIVATE_KEY=" + privateHex)
}

func generateScannerToken(scannerID, venue, secret, issuer string, ttl time.Duration, jsonOutput bool) {
	if scannerID == "" {
		scannerID = "scanner-" + uuid.NewString()[:8]
	}

	svc := jwttoken.NewJWTService(secret, issuer, ttl)
	token, jti, err := svc.GenerateScannerToken(context.Background(), scannerID, venue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	keyType := "custom"
	if secret == config.DefaultJWTSecret {
		keyType = "dev"
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token:     token,
			Type:      "scanner_token",
			ExpiresIn: ttl.String(),
			Claims: map[string]any{
				"sub":   scannerID,
				"venue": venue,
				"iss":   issuer,
				"jti":   jti,
			},
			Usage: map[string]string{
				"header":      "Authorization: Bearer <token>",
				"signing_key": keyType,
			},
		})
		return
	}
	fmt.Println("Scanner Token (JWT)")
	fmt.Println("===================")
	fmt.Printf("Signing Key: %s\n", keyType)
	fmt.Printf("Expires In:  %s\n", ttl)
	fmt.Printf("Scanner ID:  %s\n", scannerID)
	if venue != "" {
		fmt.Printf("Venue:       %s\n", venue)
	}
	fmt.Printf("JTI:         %s\n", jti)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -X POST -H \"Authorization: Bearer <token>\" http://localhost:8080/scan")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
