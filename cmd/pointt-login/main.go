package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"pointtbridge/config"
	"pointtbridge/internal/auth"
	"pointtbridge/internal/logging"
	"pointtbridge/internal/pointt"
	"pointtbridge/internal/storage/sqlite"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.json", "Path to configuration file")
	flag.Parse()

	_ = godotenv.Load()

	// Warn level keeps the library logs out of the interactive prompts
	logger := logging.NewLogger(logging.LoggerConfig{Format: "text", Level: slog.LevelWarn})

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Open the same database the daemon uses so the token is picked up on
	// the next start
	db, err := sqlite.New(cfg.Database.Path, cfg.Cloud.DeviceID)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	manager := auth.NewManager(auth.Config{
		ClientID:    cfg.Cloud.ClientID,
		LoginURL:    cfg.Cloud.LoginURL,
		TokenURL:    cfg.Cloud.TokenURL,
		RedirectURI: cfg.Cloud.RedirectURI,
	}, db, logger)

	// Start a fresh authorization attempt
	authURL := manager.BeginLogin()

	fmt.Println("Open this URL in a browser and sign in:")
	fmt.Println()
	fmt.Println(authURL)
	fmt.Println()
	fmt.Println("After signing in the browser is redirected to a URL starting with")
	fmt.Printf("%s. Copy that full URL and paste it here.\n", auth.DefaultRedirectURI)
	fmt.Println()
	fmt.Print("Callback URL: ")

	reader := bufio.NewReader(os.Stdin)
	callbackURL, err := reader.ReadString('\n')
	if err != nil {
		log.Fatalf("Failed to read callback URL: %v", err)
	}
	callbackURL = strings.TrimSpace(callbackURL)
	if callbackURL == "" {
		log.Fatal("❌ Error: no callback URL provided")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Exchange the code; the token is persisted through the store
	if err := manager.CompleteLogin(ctx, callbackURL); err != nil {
		log.Fatalf("❌ Login failed: %v", err)
	}

	fmt.Println()
	fmt.Println("Token obtained, verifying cloud access...")

	// Verify the session works against the resource API
	client := pointt.NewClient(pointt.Config{
		BaseURL:  cfg.Cloud.BaseURL,
		DeviceID: cfg.Cloud.DeviceID,
	}, manager, logger)

	gateway, err := client.Get(ctx, "/gateway")
	if err != nil {
		log.Fatalf("❌ Verification failed: %v", err)
	}

	fmt.Printf("\n✅ Success! Signed in, gateway reachable (%d fields).\n", len(gateway))
	fmt.Printf("Token stored in %s; start the bridge to begin polling.\n", cfg.Database.Path)
}

func loadConfig(path string) (*config.Config, error) {
	// Try to load from file first
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if err != config.ErrConfigFileNotFound {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// If the file doesn't exist, try environment variables
	fmt.Printf("Config file not found at %s, trying environment variables...\n", path)
	cfg, err = config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	return cfg, nil
}
