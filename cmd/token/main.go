// Package main mints an access token for an existing member.
//
// Accounts are provisioned out of band, so this is how operators obtain a
// bearer token:
//
//	go run ./cmd/token -email ada@example.com
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/samber/do/v2"

	"github.com/JoeAtEgypt/library-management/internal/auth"
	"github.com/JoeAtEgypt/library-management/internal/di"
	"github.com/JoeAtEgypt/library-management/internal/di/providers"
	"github.com/JoeAtEgypt/library-management/internal/store"
)

// Registered before the config loader parses the command line.
var email = flag.String("email", "", "Email of the member to mint a token for")

func main() {
	injector := di.NewContainer()
	defer injector.Shutdown()

	st := do.MustInvoke[*providers.StoreHandle](injector)
	tokens := do.MustInvoke[*auth.TokenService](injector)

	if *email == "" {
		fmt.Fprintln(os.Stderr, "usage: token -email <address>")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := st.GetUserByEmail(ctx, *email)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "no member with email %s\n", *email)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "lookup failed: %v\n", err)
		os.Exit(1)
	}

	token, err := tokens.GenerateAccessToken(user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "token for %s (%s), valid %s\n", user.DisplayName(), user.ID, tokens.AccessTokenDuration())
	fmt.Println(token)
}
