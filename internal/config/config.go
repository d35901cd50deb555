package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvRepoDir overrides repository root detection. It is read by the
// bootstrap code before Load runs, so it lives here as the single source
// of truth for the variable name.
const EnvRepoDir = "BOTANIQ_REPO_DIR"

// DefaultAllowedServices is the unit allowlist used when
// ADMIN_ALLOWED_SERVICES is not set.
const DefaultAllowedServices = "nginx,botaniq-node,admin-api"

// Config carries every tunable the daemon reads. It is built once at
// startup and passed explicitly; nothing reads the environment after
// Load returns.
type Config struct {
	HTTPListenAddr string
	LogLevel       string
	ServiceName    string
	// ServerName distinguishes hosts in log output when several machines
	// ship to the same sink.
	ServerName string

	// RepoDir is the resolved root of the application checkout.
	RepoDir string

	// ButtonSecret is the HMAC key for per-request body signatures.
	ButtonSecret string
	// StaticToken is the shared admin token. Empty disables token auth
	// entirely; an empty presented token never matches.
	StaticToken string

	AllowedServices ServiceSet
	DefaultService  string

	// NodeAppURL is the base URL of the node application that receives
	// forwarded action log entries.
	NodeAppURL string

	MaintenanceFile string

	// GitUser owns the checkout; pulls run as this user through sudo.
	GitUser string

	// DevMode swaps privileged host operations for logged no-ops so the
	// daemon can run outside a systemd host.
	DevMode bool

	Database DatabaseEnv
}

// DatabaseEnv is the snapshot of database-related environment taken at
// startup. The schema sync pipeline resolves a connection from it without
// touching the process environment again.
type DatabaseEnv struct {
	// URL is the first configured connection URL, if any.
	URL string

	Host     string
	User     string
	Password string
	Port     string
	Name     string

	SupabaseURL      string
	SupabaseUser     string
	SupabasePassword string
	ServiceRoleKey   string
}

func Load(repoRoot string) (*Config, error) {
	cfg := &Config{
		HTTPListenAddr:  getEnv("HTTP_LISTEN_ADDR", "127.0.0.1:5001"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ServiceName:     "admind",
		ServerName:      getEnv("BOTANIQ_SERVER_NAME", ""),
		RepoDir:         repoRoot,
		ButtonSecret:    getEnv("ADMIN_BUTTON_SECRET", "change-me"),
		StaticToken:     getEnv("ADMIN_STATIC_TOKEN", ""),
		AllowedServices: ParseServiceSet(getEnv("ADMIN_ALLOWED_SERVICES", DefaultAllowedServices)),
		DefaultService:  getEnv("ADMIN_DEFAULT_SERVICE", "botaniq-node"),
		NodeAppURL:      getEnv("NODE_APP_URL", "http://127.0.0.1:3000"),
		MaintenanceFile: getEnv("ADMIN_MAINTENANCE_FILE", "/tmp/botaniq-maintenance.json"),
		GitUser:         getEnv("ADMIN_GIT_USER", "www-data"),
		DevMode:         getEnv("ADMIN_DEV_MODE", "") == "true",
		Database:        loadDatabaseEnv(),
	}

	return cfg, nil
}

// Validate reports configuration the daemon cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.HTTPListenAddr == "" {
		missing = append(missing, "HTTP_LISTEN_ADDR")
	}
	if c.ButtonSecret == "" {
		missing = append(missing, "ADMIN_BUTTON_SECRET")
	}
	if c.RepoDir == "" {
		missing = append(missing, EnvRepoDir)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if c.DefaultService != "" && !c.AllowedServices.Allowed(c.DefaultService) {
		return fmt.Errorf("ADMIN_DEFAULT_SERVICE %q is not in ADMIN_ALLOWED_SERVICES", c.DefaultService)
	}

	return nil
}

// WebDir is the frontend application directory inside the checkout.
func (c *Config) WebDir() string {
	return filepath.Join(c.RepoDir, "web")
}

// RefreshScript rebuilds and redeploys the application.
func (c *Config) RefreshScript() string {
	return filepath.Join(c.RepoDir, "scripts", "refresh-app.sh")
}

// DeployFunctionsScript pushes edge functions to the platform.
func (c *Config) DeployFunctionsScript() string {
	return filepath.Join(c.RepoDir, "scripts", "deploy-edge-functions.sh")
}

// SitemapScript regenerates the public sitemap.
func (c *Config) SitemapScript() string {
	return filepath.Join(c.RepoDir, "scripts", "generate-sitemap-daily.sh")
}

// SetupScript is the full host provisioning script at the checkout root.
func (c *Config) SetupScript() string {
	return filepath.Join(c.RepoDir, "setup.sh")
}

func loadDatabaseEnv() DatabaseEnv {
	return DatabaseEnv{
		URL:              firstEnv("DATABASE_URL", "POSTGRES_URL", "POSTGRES_PRISMA_URL", "SUPABASE_DB_URL"),
		Host:             firstEnv("PGHOST", "POSTGRES_HOST"),
		User:             firstEnv("PGUSER", "POSTGRES_USER"),
		Password:         firstEnv("PGPASSWORD", "POSTGRES_PASSWORD"),
		Port:             firstEnv("PGPORT", "POSTGRES_PORT"),
		Name:             firstEnv("PGDATABASE", "POSTGRES_DB"),
		SupabaseURL:      firstEnv("SUPABASE_URL", "VITE_SUPABASE_URL"),
		SupabaseUser:     firstEnv("SUPABASE_DB_USER"),
		SupabasePassword: firstEnv("SUPABASE_DB_PASSWORD", "PGPASSWORD", "POSTGRES_PASSWORD"),
		ServiceRoleKey:   firstEnv("SUPABASE_SERVICE_ROLE_KEY"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
