package main

import (
	"flag"
	"fmt"
	"log"
	"oraclehub/internal/config"
	"oraclehub/internal/domain"
	"oraclehub/internal/security"
	"os"
	"time"
)

// mint-token prints an admin bearer token for the configured RS256 key pair.
func main() {
	var (
		cfgPath = flag.String("config", envOr("CONFIG", "cmd/oracled/config.yaml"), "path to oracled config")
		caller  = flag.String("caller", "", "admin address to put in the token subject")
		ttl     = flag.Duration("ttl", 0, "token lifetime, security.jwt.ttl when zero")
	)
	flag.Parse()

	if *caller == "" {
		log.Fatal("-caller is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed load config, error=%v", err)
	}

	signer, err := security.NewRS256Signer(&cfg.Security.JWT)
	if err != nil {
		log.Fatalf("Failed to initialize signer, error=%v", err)
	}

	token, err := signer.Mint(domain.Address(*caller), *ttl)
	if err != nil {
		log.Fatalf("Failed to mint token, error=%v", err)
	}

	fmt.Println(token)
	if *ttl == 0 {
		*ttl = signer.TTL
	}
	fmt.Fprintf(os.Stderr, "expires at %s\n", time.Now().Add(*ttl).UTC().Format(time.RFC3339))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
