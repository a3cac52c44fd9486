// Command token mints an operator access token signed with JWT_SECRET.
//
//	go run ./cmd/token -user alice -role operator
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"calling-center/internal/auth"
	"calling-center/internal/config"
	"calling-center/internal/rbac"
	"calling-center/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	user := flag.String("user", "", "operator user id")
	role := flag.String("role", rbac.RoleOperator, "role: admin, operator or viewer")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_ACCESS_TTL)")
	flag.Parse()

	_ = godotenv.Load()
	log := logger.New(os.Getenv("APP_ENV"))
	slog.SetDefault(log)

	if *user == "" {
		log.Error("-user is required")
		os.Exit(2)
	}
	if !rbac.IsKnownRole(*role) {
		log.Error("unknown role", "role", *role)
		os.Exit(2)
	}

	cfg := config.AuthConfig{
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTIssuer:   os.Getenv("JWT_ISSUER"),
		JWTAudience: os.Getenv("JWT_AUDIENCE"),
	}
	if *ttl > 0 {
		cfg.AccessTokenTTL = *ttl
	} else if raw := os.Getenv("JWT_ACCESS_TTL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			log.Error("JWT_ACCESS_TTL must be a duration", "value", raw)
			os.Exit(2)
		}
		cfg.AccessTokenTTL = d
	}

	m, err := auth.NewManager(cfg)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	tok, err := m.Issue(time.Now(), *user, *role)
	if err != nil {
		log.Error("issue token failed", "err", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
