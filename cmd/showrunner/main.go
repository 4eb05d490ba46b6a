// showrunner - live quiz show orchestration server and tools
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/maxot/showrunner/internal/api"
	"github.com/maxot/showrunner/internal/assets"
	"github.com/maxot/showrunner/internal/auth"
	"github.com/maxot/showrunner/internal/broker"
	"github.com/maxot/showrunner/internal/config"
	"github.com/maxot/showrunner/internal/engine"
	"github.com/maxot/showrunner/internal/license"
	"github.com/maxot/showrunner/internal/lifecycle"
	"github.com/maxot/showrunner/internal/notify"
	"github.com/maxot/showrunner/internal/scenario"
	"github.com/maxot/showrunner/internal/session"
	"github.com/maxot/showrunner/internal/storage"
)

var version = "dev"

const defaultConfigPath = "/etc/showrunner/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "user":
		cmdUser(os.Args[2:])
	case "license":
		cmdLicense(os.Args[2:])
	case "scenario":
		cmdScenario(os.Args[2:])
	case "assets":
		cmdAssets(os.Args[2:])
	case "version":
		fmt.Printf("showrunner %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: showrunner <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                               Start the show server")
	fmt.Println("  user add [--admin] <username>       Add a console user (prompts for password)")
	fmt.Println("  user remove <username>              Remove a console user")
	fmt.Println("  user list                           List console users")
	fmt.Println("  user reset <username>               Reset a user's password")
	fmt.Println("  user admin <username>               Toggle admin status for a user")
	fmt.Println("  license issue [flags]               Sign a new license token")
	fmt.Println("  license inspect <file>              Show a license token's claims")
	fmt.Println("  scenario check <file>               Validate a scenario file or .show bundle")
	fmt.Println("  assets normalize <dir>              Normalize scenario media images")
	fmt.Println("  version                             Show version")
	fmt.Println("  help                                Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/showrunner/config.yml)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  showrunner serve --config ./config.yml")
	fmt.Println("  showrunner user add --admin operator")
	fmt.Println("  showrunner scenario check friday.show")
}

// cmdServe starts the show server
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	// Optional .env for secrets kept out of the config file
	godotenv.Load()

	cfgPath := *configPath
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgPath = defaultConfigPath
		} else {
			log.Fatalf("No config file found at %s. Use --config to specify a config file.", defaultConfigPath)
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if secret := os.Getenv("SHOWRUNNER_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if secret := os.Getenv("SHOWRUNNER_LICENSE_SECRET"); secret != "" {
		cfg.License.Secret = secret
	}

	log.Printf("Showrunner %s starting...", version)

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()
	log.Printf("Database initialized at %s", cfg.Database.Path)

	bkr, err := broker.Start(cfg.Broker)
	if err != nil {
		log.Fatalf("Failed to start broker: %v", err)
	}
	defer bkr.Shutdown()
	log.Printf("Broker listening on %s", bkr.ClientURL())

	notifier := notify.NewPublisher(bkr.Conn())
	lic := license.NewFileValidator(cfg.License.Path, cfg.License.Secret, store)
	svc := lifecycle.NewService(
		session.NewStore(session.NewMemoryCache()),
		store, lic, notifier, store, cfg.Game, engine.NewRealScheduler(),
	)

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	if cfg.Auth.JWTSecret == "" {
		log.Printf("Warning: No JWT secret configured. Auth tokens will use an empty secret.")
	}

	router := api.NewRouter(svc, store, authService, notifier, bkr.Conn(),
		cfg.Server.PublicURL, cfg.Server.StaticDir)
	if err := router.Start(); err != nil {
		log.Fatalf("Failed to attach gateway to broker: %v", err)
	}
	defer router.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		log.Printf("Join URL: %s", cfg.Server.PublicURL)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case err := <-serverErr:
		log.Fatalf("HTTP server error: %v", err)
	}

	// A show still running gets its record closed before we exit
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := svc.ForceStop(stopCtx); err != nil && err != lifecycle.ErrNoGame {
		log.Printf("Force stop error: %v", err)
	}
	stopCancel()

	log.Println("Shutting down HTTP server...")
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}

// openStore loads config and opens the database for CLI commands
func openStore(args []string) (*config.Config, *storage.Store, []string) {
	fs := flag.NewFlagSet("cli", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", *configPath, err)
		cfg = config.Default()
	}

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	return cfg, store, fs.Args()
}

func cmdUser(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: user subcommand required: add, remove, list, reset, admin\n")
		os.Exit(1)
	}

	subCmd := args[0]
	_, store, remaining := openStore(args[1:])
	defer store.Close()

	ctx := context.Background()

	var err error
	switch subCmd {
	case "add":
		err = cmdUserAdd(ctx, store, remaining)
	case "remove":
		err = cmdUserRemove(ctx, store, remaining)
	case "list":
		err = cmdUserList(ctx, store)
	case "reset":
		err = cmdUserReset(ctx, store, remaining)
	case "admin":
		err = cmdUserAdmin(ctx, store, remaining)
	default:
		err = fmt.Errorf("unknown user command: %s (use: add, remove, list, reset, admin)", subCmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// promptPassword reads and confirms a password without echoing it
func promptPassword() (string, error) {
	fmt.Print("Enter password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(password) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(password), nil
}

func cmdUserAdd(ctx context.Context, store *storage.Store, args []string) error {
	fs := flag.NewFlagSet("user add", flag.ExitOnError)
	isAdmin := fs.Bool("admin", false, "create as admin user")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) < 1 {
		return fmt.Errorf("usage: showrunner user add [--admin] <username>")
	}
	username := remaining[0]

	if _, err := store.GetUserByUsername(ctx, username); err == nil {
		return fmt.Errorf("user '%s' already exists", username)
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := store.CreateUser(ctx, username, hash, *isAdmin); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	roleStr := "user"
	if *isAdmin {
		roleStr = "admin"
	}
	fmt.Printf("User '%s' created successfully (role: %s)\n", username, roleStr)
	return nil
}

func cmdUserRemove(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: showrunner user remove <username>")
	}
	username := args[0]

	if err := store.DeleteUser(ctx, username); err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}

	fmt.Printf("User '%s' removed\n", username)
	return nil
}

func cmdUserList(ctx context.Context, store *storage.Store) error {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tROLE\tPWD_CHANGE\tLAST_LOGIN")
	fmt.Fprintln(w, "--------\t----\t----------\t----------")

	for _, user := range users {
		role := "user"
		if user.IsAdmin {
			role = "admin"
		}
		pwdChange := "no"
		if user.PasswordChangeRequired {
			pwdChange = "yes"
		}
		lastLogin := "never"
		if user.LastLogin != nil {
			lastLogin = user.LastLogin.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", user.Username, role, pwdChange, lastLogin)
	}
	return w.Flush()
}

func cmdUserReset(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: showrunner user reset <username>")
	}
	username := args[0]

	user, err := store.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user not found: %s", username)
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := store.ResetUserPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	fmt.Printf("Password reset for '%s' (user will be required to change it on next login)\n", username)
	return nil
}

func cmdUserAdmin(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: showrunner user admin <username>")
	}
	username := args[0]

	user, err := store.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user not found: %s", username)
	}

	newAdminStatus := !user.IsAdmin
	if err := store.UpdateUserAdmin(ctx, user.ID, newAdminStatus); err != nil {
		return fmt.Errorf("failed to update admin status: %w", err)
	}

	if newAdminStatus {
		fmt.Printf("User '%s' is now an admin\n", username)
	} else {
		fmt.Printf("User '%s' is no longer an admin\n", username)
	}
	return nil
}

func cmdLicense(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: license subcommand required: issue, inspect\n")
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "issue":
		err = cmdLicenseIssue(args[1:])
	case "inspect":
		err = cmdLicenseInspect(args[1:])
	default:
		err = fmt.Errorf("unknown license command: %s (use: issue, inspect)", args[0])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdLicenseIssue(args []string) error {
	fs := flag.NewFlagSet("license issue", flag.ExitOnError)
	secret := fs.String("secret", "", "signing secret (or SHOWRUNNER_LICENSE_SECRET)")
	id := fs.String("id", "", "license identifier")
	customer := fs.String("customer", "", "licensee name")
	days := fs.Int("days", 365, "validity in days")
	games := fs.Int("games", 0, "game quota, 0 for unlimited")
	out := fs.String("out", "", "write token to file instead of stdout")
	fs.Parse(args)

	godotenv.Load()
	if *secret == "" {
		*secret = os.Getenv("SHOWRUNNER_LICENSE_SECRET")
	}
	if *secret == "" {
		return fmt.Errorf("a signing secret is required")
	}
	if *id == "" || *customer == "" {
		return fmt.Errorf("usage: showrunner license issue --id <id> --customer <name> [--days N] [--games N]")
	}

	token, err := license.Issue(*secret, *id, *customer, time.Duration(*days)*24*time.Hour, *games)
	if err != nil {
		return fmt.Errorf("failed to sign license: %w", err)
	}

	if *out != "" {
		if err := os.WriteFile(*out, []byte(token+"\n"), 0600); err != nil {
			return fmt.Errorf("failed to write license file: %w", err)
		}
		fmt.Printf("License written to %s\n", *out)
		return nil
	}
	fmt.Println(token)
	return nil
}

func cmdLicenseInspect(args []string) error {
	fs := flag.NewFlagSet("license inspect", flag.ExitOnError)
	secret := fs.String("secret", "", "signing secret (or SHOWRUNNER_LICENSE_SECRET)")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) < 1 {
		return fmt.Errorf("usage: showrunner license inspect [--secret S] <file>")
	}

	godotenv.Load()
	if *secret == "" {
		*secret = os.Getenv("SHOWRUNNER_LICENSE_SECRET")
	}

	data, err := os.ReadFile(remaining[0])
	if err != nil {
		return fmt.Errorf("failed to read license file: %w", err)
	}

	claims, err := license.Parse(strings.TrimSpace(string(data)), *secret)
	if err != nil {
		return err
	}

	fmt.Printf("License:   %s\n", claims.ID)
	fmt.Printf("Customer:  %s\n", claims.Customer)
	if claims.MaxGames > 0 {
		fmt.Printf("Quota:     %d games\n", claims.MaxGames)
	} else {
		fmt.Printf("Quota:     unlimited\n")
	}
	if claims.ExpiresAt != nil {
		fmt.Printf("Expires:   %s\n", claims.ExpiresAt.Format("2006-01-02"))
	}
	return nil
}

func cmdScenario(args []string) {
	if len(args) < 2 || args[0] != "check" {
		fmt.Fprintf(os.Stderr, "Usage: showrunner scenario check <file>\n")
		os.Exit(1)
	}

	scn, err := scenario.Load(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Scenario:  %s\n", scn.Name)
	fmt.Printf("Stages:    %d\n", len(scn.Stages))
	fmt.Printf("Rounds:    %d\n", len(scn.Rounds))
	questions := 0
	for _, r := range scn.Rounds {
		questions += len(r.Questions)
	}
	fmt.Printf("Questions: %d\n", questions)
	if scn.Shop != nil {
		fmt.Printf("Shop:      %d items\n", len(scn.Shop.Stock))
	}
	fmt.Println("OK")
}

func cmdAssets(args []string) {
	if len(args) < 2 || args[0] != "normalize" {
		fmt.Fprintf(os.Stderr, "Usage: showrunner assets normalize <dir>\n")
		os.Exit(1)
	}

	n, err := assets.NormalizeDir(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Normalized %d images\n", n)
}
