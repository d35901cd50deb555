package schemasync

import (
	"net/url"
	"strings"
)

// Descriptor is an immutable description of how one psql attempt
// reaches the database: the connection URL with credentials stripped,
// the password delivered through the environment, and the trust-store
// override for this attempt.
type Descriptor struct {
	URL         string
	Password    string
	SSLRootCert string
}

// WithRootCert returns a copy pointing at a different trust store.
func (d Descriptor) WithRootCert(path string) Descriptor {
	d.SSLRootCert = path
	return d
}

// Env builds the child environment for an attempt: the parent
// environment with every SSL-related and password variable removed,
// then the attempt's own settings appended. The password never appears
// in argv; this is the only channel it travels through.
func (d Descriptor) Env(base []string) []string {
	env := make([]string, 0, len(base)+3)
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "PGSSL") || strings.HasPrefix(key, "SSL_") || key == "PGPASSWORD" {
			continue
		}
		env = append(env, kv)
	}

	env = append(env, "PGSSLMODE=require")
	if d.Password != "" {
		env = append(env, "PGPASSWORD="+d.Password)
	}
	if d.SSLRootCert != "" {
		env = append(env, "PGSSLROOTCERT="+d.SSLRootCert)
	}
	return env
}

// splitCredentials removes the password from a connection URL, returning
// the sanitized URL and the password separately.
func splitCredentials(raw string) (cleanURL, password string) {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw, ""
	}
	pw, has := u.User.Password()
	if !has {
		return raw, ""
	}
	u.User = url.User(u.User.Username())
	return u.String(), pw
}

// forceSSLMode rewrites the URL's sslmode to require for non-local
// hosts unless an equally permissive mode is already set. require
// encrypts without verifying the server certificate, so a host with a
// stale CA store can still sync.
func forceSSLMode(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || host == "127.0.0.1" {
		return raw
	}

	q := u.Query()
	switch strings.ToLower(q.Get("sslmode")) {
	case "require", "prefer", "allow":
		return raw
	}
	q.Set("sslmode", "require")
	u.RawQuery = q.Encode()
	return u.String()
}
