package schemasync

import (
	"net"
	"net/url"
	"strings"

	"github.com/botaniq/admind/internal/config"
)

// Resolve builds the connection descriptor from the database environment
// snapshot. Source order: an explicit connection URL, discrete PG*
// variables, then derivation from the Supabase project URL.
func Resolve(db config.DatabaseEnv) (Descriptor, error) {
	if db.URL != "" {
		cleanURL, password := splitCredentials(db.URL)
		return Descriptor{URL: forceSSLMode(cleanURL), Password: password}, nil
	}

	if db.Host != "" && db.User != "" {
		return pieceDescriptor(db.Host, db.User, db.Password, db.Port, db.Name), nil
	}

	if db.SupabaseURL != "" && db.SupabasePassword != "" {
		if d, ok := supabaseDescriptor(db); ok {
			return d, nil
		}
	}

	return Descriptor{}, &ConfigError{Reason: "Database not configured"}
}

func pieceDescriptor(host, user, password, port, name string) Descriptor {
	if port == "" {
		port = "5432"
	}
	if name == "" {
		name = "postgres"
	}
	u := &url.URL{
		Scheme: "postgresql",
		User:   url.User(user),
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + name,
	}
	return Descriptor{URL: forceSSLMode(u.String()), Password: password}
}

// supabaseDescriptor derives the direct database host from the project
// URL: https://<ref>.supabase.co fronts a database at
// db.<ref>.supabase.co.
func supabaseDescriptor(db config.DatabaseEnv) (Descriptor, bool) {
	u, err := url.Parse(db.SupabaseURL)
	if err != nil {
		return Descriptor{}, false
	}
	ref, _, _ := strings.Cut(u.Hostname(), ".")
	if ref == "" {
		return Descriptor{}, false
	}

	user := db.SupabaseUser
	if user == "" {
		user = db.User
	}
	if user == "" {
		user = "postgres"
	}

	return pieceDescriptor("db."+ref+".supabase.co", user, db.SupabasePassword, db.Port, db.Name), true
}
