// Command token issues an access token signed with the configured secret.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/yakoovad/ensemble-events/internal/auth"
	"github.com/yakoovad/ensemble-events/internal/config"
)

func main() {
	role := flag.String("role", string(auth.RoleParticipant), "participant or organizer")
	subject := flag.String("subject", "", "user id the token acts as")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	auth.TokenSecretKey = cfg.TokenSecret

	token, err := auth.GenerateToken(auth.Role(*role), *subject, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
