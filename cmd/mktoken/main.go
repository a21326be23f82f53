// Command mktoken issues a bearer token for the ops API. Tokens are
// handed to operators out of band; the engine itself has no login flow.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/config"
)

func main() {
	subject := flag.String("subject", "", "subject id embedded in the token")
	role := flag.String("role", string(auth.RoleViewer), "OPERATOR or VIEWER")
	flag.Parse()

	if *subject == "" {
		flag.Usage()
		os.Exit(2)
	}

	switch auth.Role(*role) {
	case auth.RoleOperator, auth.RoleViewer:
	default:
		log.Fatalf("unknown role %q", *role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	token, expiresAt, err := tokens.GenerateToken(*subject, auth.Role(*role))
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format("2006-01-02T15:04:05Z07:00"))
}
