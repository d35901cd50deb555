package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// envAliases maps canonical variable names to the legacy spellings found
// in the web app's env files. Promotion never overrides a canonical value
// that is already set.
var envAliases = map[string][]string{
	"DATABASE_URL":         {"DB_URL", "PG_URL", "POSTGRES_URL", "POSTGRES_PRISMA_URL", "SUPABASE_DB_URL"},
	"SUPABASE_URL":         {"VITE_SUPABASE_URL"},
	"SUPABASE_DB_PASSWORD": {"PGPASSWORD", "POSTGRES_PASSWORD"},
	"ADMIN_STATIC_TOKEN":   {"VITE_ADMIN_STATIC_TOKEN"},
}

// LoadEnvFiles merges the web app's .env and .env.server into the process
// environment without overriding variables that are already set, then
// promotes legacy aliases. Call before Load. Missing files are fine; a
// file that exists but cannot be parsed is reported.
func LoadEnvFiles(repoRoot string) error {
	var errs []error
	for _, name := range []string{".env", ".env.server"} {
		path := filepath.Join(repoRoot, "web", name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", path, err))
		}
	}
	promoteAliases()
	return errors.Join(errs...)
}

func promoteAliases() {
	for canonical, aliases := range envAliases {
		if os.Getenv(canonical) != "" {
			continue
		}
		for _, alias := range aliases {
			if v := os.Getenv(alias); v != "" {
				os.Setenv(canonical, v)
				break
			}
		}
	}
}
