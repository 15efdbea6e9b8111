// Command token prints a signed bearer token for a local account, using the
// same JWT_SECRET and JWT_TTL as the API.
//
//	go run ./cmd/token -user buyer-1
//	go run ./cmd/token -user admin-1 -admin
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/storefront-orders/internal/auth"
	"github.com/ariefcatur/storefront-orders/internal/config"
	"github.com/ariefcatur/storefront-orders/internal/logx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logx.Setup(cfg.ServiceName+"-token", cfg.LogLevel, cfg.LogFormat)

	if err := run(os.Args[1:], cfg, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("issue token")
	}
}

func run(args []string, cfg config.Config, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	user := fs.String("user", "", "user id carried in the token")
	admin := fs.Bool("admin", false, "mark the token as an admin token")
	ttl := fs.Duration("ttl", cfg.JWTTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return errors.New("-user is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	iss := &auth.Issuer{Secret: []byte(cfg.JWTSecret), TTL: *ttl}
	tok, err := iss.Issue(*user, *admin)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}
