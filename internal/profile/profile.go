package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for the webhook server
	Addr string
	// Port is the binding port for the webhook server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where dialogd stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of the server
	Version string
	// SiteURL is the public base URL, used when building media links
	SiteURL string

	// SecretKey enables identity protection when non-empty. Identifiers are
	// encrypted at rest once a key is configured.
	SecretKey string
	// WebhookToken authenticates inbound message webhooks when non-empty.
	WebhookToken string
	// DefaultChannel is the transmission channel assumed for inbound messages
	// that carry no channel of their own.
	DefaultChannel string
	// NudgeInterval is the delay between open-session sweeps.
	NudgeInterval time.Duration
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from DIALOG_* environment variables.
func (p *Profile) FromEnv() {
	p.SecretKey = getEnvOrDefault("DIALOG_SECRET_KEY", p.SecretKey)
	p.WebhookToken = getEnvOrDefault("DIALOG_WEBHOOK_TOKEN", p.WebhookToken)
	p.SiteURL = getEnvOrDefault("DIALOG_SITE_URL", p.SiteURL)
	p.DefaultChannel = getEnvOrDefault("DIALOG_DEFAULT_CHANNEL", p.DefaultChannel)

	if raw := os.Getenv("DIALOG_NUDGE_INTERVAL_SECONDS"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			p.NudgeInterval = time.Duration(seconds) * time.Second
		}
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.Driver == "" {
		p.Driver = "sqlite"
	}

	if p.NudgeInterval <= 0 {
		p.NudgeInterval = time.Minute
	}

	if p.Driver == "sqlite" {
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			return errors.Wrap(err, "failed to check data dir")
		}
		p.Data = dataDir

		if p.DSN == "" {
			dbFile := fmt.Sprintf("dialogd_%s.db", p.Mode)
			p.DSN = filepath.Join(dataDir, dbFile)
		}
	} else if p.DSN == "" {
		return errors.New("a DSN is required for the postgres driver")
	}

	return nil
}
