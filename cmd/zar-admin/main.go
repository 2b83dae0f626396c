// zar-admin performs operator tasks against the Zar database: creating
// admin accounts, issuing tokens out of band and seeding delivery options.
//
// It reads the same environment as the server (DATABASE_URL, JWT_SECRET,
// JWT_TTL_HOURS, DB_LOG_LEVEL).
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/example/zar/internal/config"
	"github.com/example/zar/internal/database"
	"github.com/example/zar/internal/utils"
)

const usage = `usage: zar-admin <command> [flags]

commands:
  create-admin --username U --password P [--update]
  issue-token  --id N --username U [--ttl 1h]
  seed         --file delivery.yaml
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return errors.New("missing command")
	}

	command, rest := args[0], args[1:]
	switch command {
	case "create-admin":
		return runCreateAdmin(rest, stdout)
	case "issue-token":
		return runIssueToken(rest, stdout)
	case "seed":
		return runSeed(rest, stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// parseFlags parses args into flagSet, treating --help as success.
func parseFlags(flagSet *pflag.FlagSet, args []string, stdout io.Writer) (bool, error) {
	flagSet.SetOutput(stdout)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return false, fmt.Errorf("unexpected arguments: %v", extra)
	}
	return true, nil
}

func runCreateAdmin(args []string, stdout io.Writer) error {
	var username, password string
	var update bool

	flagSet := pflag.NewFlagSet("create-admin", pflag.ContinueOnError)
	flagSet.StringVar(&username, "username", "", "admin username")
	flagSet.StringVar(&password, "password", "", "admin password (at least 8 characters)")
	flagSet.BoolVar(&update, "update", false, "reset the password when the admin already exists")
	if ok, err := parseFlags(flagSet, args, stdout); !ok {
		return err
	}

	cfg := config.Load()
	db := database.Connect(cfg.DatabaseURL, cfg.DBLogLevel)

	admin, created, err := upsertAdmin(db, username, password, update)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(stdout, "created admin %q (id=%d)\n", admin.Username, admin.ID)
	} else {
		fmt.Fprintf(stdout, "updated password of admin %q (id=%d)\n", admin.Username, admin.ID)
	}
	return nil
}

func runIssueToken(args []string, stdout io.Writer) error {
	var id uint
	var username string
	var ttl time.Duration

	flagSet := pflag.NewFlagSet("issue-token", pflag.ContinueOnError)
	flagSet.UintVar(&id, "id", 0, "admin id to embed in the token")
	flagSet.StringVar(&username, "username", "", "admin username to embed in the token")
	flagSet.DurationVar(&ttl, "ttl", 0, "token lifetime (default JWT_TTL_HOURS)")
	if ok, err := parseFlags(flagSet, args, stdout); !ok {
		return err
	}

	cfg := config.Load()
	if ttl <= 0 {
		ttl = cfg.TokenExpires
	}

	token, err := issueToken(utils.NewTokenService(cfg.JWTSecret, ttl, utils.RealClock()), id, username)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}

func runSeed(args []string, stdout io.Writer) error {
	var file string

	flagSet := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	flagSet.StringVarP(&file, "file", "f", "", "YAML file with delivery zones and slots")
	if ok, err := parseFlags(flagSet, args, stdout); !ok {
		return err
	}
	if file == "" {
		return errors.New("--file is required")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	seed, err := parseSeed(data)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	cfg := config.Load()
	db := database.Connect(cfg.DatabaseURL, cfg.DBLogLevel)

	zones, slots, err := applySeed(db, seed)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "seeded %d zones and %d slots\n", zones, slots)
	return nil
}
