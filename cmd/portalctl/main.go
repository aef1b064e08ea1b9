// Command portalctl drives the job portal auth API from a terminal.
//
// Commands run in order against one session, so the refresh cookie and access
// token from an earlier step are used by later ones:
//
//	portalctl -url https://localhost:8080/api/v1 -email jane@example.com -password secret123 login me logout
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/br-cmd/MerNproject/internal/client"
)

type options struct {
	baseURL  string
	name     string
	email    string
	password string
	timeout  time.Duration
	verbose  bool
}

func main() {
	var opts options
	fs := flag.NewFlagSet("portalctl", flag.ExitOnError)
	fs.StringVar(&opts.baseURL, "url", envOr("PORTAL_URL", "http://localhost:8080/api/v1"), "API base URL")
	fs.StringVar(&opts.name, "name", "", "display name for register")
	fs.StringVar(&opts.email, "email", os.Getenv("PORTAL_EMAIL"), "account email")
	fs.StringVar(&opts.password, "password", os.Getenv("PORTAL_PASSWORD"), "account password")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "timeout for the whole session")
	fs.BoolVar(&opts.verbose, "v", false, "log transport activity to stderr")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: portalctl [flags] command...\n\ncommands: register, login, me, refresh, logout\n\nflags:\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	if err := run(opts, fs.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "portalctl:", err)
		os.Exit(1)
	}
}

func run(opts options, commands []string, out io.Writer) error {
	logger := zap.NewNop()
	if opts.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		logger = l
		defer func() { _ = logger.Sync() }()
	}

	c, err := client.New(opts.baseURL,
		client.WithLogger(logger),
		client.WithOnSessionExpired(func() {
			fmt.Fprintln(os.Stderr, "session expired, please log in again")
		}),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	for _, cmd := range commands {
		result, err := step(ctx, c, opts, cmd)
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) {
				return fmt.Errorf("%s: %s", cmd, apiErr.Message)
			}
			return fmt.Errorf("%s: %w", cmd, err)
		}
		if err := printJSON(out, result); err != nil {
			return err
		}
	}
	return nil
}

func step(ctx context.Context, c *client.Client, opts options, cmd string) (any, error) {
	switch cmd {
	case "register":
		return c.Register(ctx, opts.name, opts.email, opts.password)
	case "login":
		return c.Login(ctx, opts.email, opts.password)
	case "me":
		return c.GetUser(ctx)
	case "refresh":
		token, err := c.Refresh(ctx)
		return map[string]string{"accessToken": token}, err
	case "logout":
		return map[string]bool{"loggedOut": true}, c.Logout(ctx)
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
