package schemasync

import (
	"os"
	"path/filepath"
	"strings"
)

// UnitsDir returns the schema unit directory for the checkout: the web
// app's supabase/sync_parts when it exists, else the checkout-level
// fallback.
func UnitsDir(repoRoot string) string {
	primary := filepath.Join(repoRoot, "web", "supabase", "sync_parts")
	if info, err := os.Stat(primary); err == nil && info.IsDir() {
		return primary
	}
	return filepath.Join(repoRoot, "supabase", "sync_parts")
}

// DiscoverUnits lists the .sql files in dir in lexical order. Ordering
// is the contract: units are numbered so earlier files create what
// later ones reference.
func DiscoverUnits(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var units []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		units = append(units, entry.Name())
	}
	return units
}
