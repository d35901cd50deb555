package schemasync

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/botaniq/admind/internal/config"
)

const secretsTimeout = 30 * time.Second

// upsertPlatformSecrets stores the Supabase URL and service-role key in
// admin_secrets after a successful sync so server-side functions can
// read them. Values are bound as query parameters, never spliced into
// the SQL text.
func upsertPlatformSecrets(ctx context.Context, d Descriptor, db config.DatabaseEnv) error {
	ctx, cancel := context.WithTimeout(ctx, secretsTimeout)
	defer cancel()

	cfg, err := pgx.ParseConfig(d.URL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	if d.Password != "" {
		cfg.Password = d.Password
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)

	const stmt = `
		INSERT INTO public.admin_secrets (key, value)
		VALUES ('SUPABASE_URL', $1), ('SUPABASE_SERVICE_ROLE_KEY', $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	if _, err := conn.Exec(ctx, stmt, db.SupabaseURL, db.ServiceRoleKey); err != nil {
		return fmt.Errorf("upsert admin_secrets: %w", err)
	}
	return nil
}
