package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/sudo-init-do/agriloop/internal/config"
	"github.com/sudo-init-do/agriloop/internal/marketplace"
	"github.com/sudo-init-do/agriloop/internal/middleware"
)

func main() {
	userID := flag.String("user", "", "User id to put in the token")
	role := flag.String("role", string(marketplace.RoleAdmin), "Role claim: seller, buyer or admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *userID == "" {
		log.Fatalf("usage: go run cmd/adminutil/issue_token/main.go -user <id> [-role admin] [-ttl 24h]")
	}
	switch marketplace.Role(*role) {
	case marketplace.RoleSeller, marketplace.RoleBuyer, marketplace.RoleAdmin:
	default:
		log.Fatalf("unknown role %q", *role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.JWT.Secret == "" {
		log.Fatalf("JWT_SECRET is not set")
	}

	tok, err := middleware.IssueToken(cfg.JWT.Secret, *userID, *role, *ttl)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Println(tok)
}
