package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"aftervisit.org/internal/auth"
)

// GetTenantConfig loads the directory record for one tenant. Missing
// branding columns fall back to synthesized defaults at the caller.
func (s *Store) GetTenantConfig(ctx context.Context, tenantID string) (*auth.TenantConfig, error) {
	tenantID = strings.TrimSpace(tenantID)
	var (
		cfg      auth.TenantConfig
		features []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, coalesce(logo_url, ''), coalesce(primary_color, ''),
		       coalesce(secondary_color, ''), coalesce(features, '{}'::jsonb),
		       created_at, updated_at
		from tenants
		where id = $1
	`, tenantID).Scan(
		&cfg.ID, &cfg.Name, &cfg.Branding.LogoURL, &cfg.Branding.PrimaryColor,
		&cfg.Branding.SecondaryColor, &features, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &cfg.Features); err != nil {
			return nil, fmt.Errorf("decode tenant features: %w", err)
		}
	}
	if cfg.Branding.LogoURL == "" {
		cfg.Branding.LogoURL = auth.DefaultBranding(cfg.ID).LogoURL
	}
	if cfg.Branding.PrimaryColor == "" {
		cfg.Branding.PrimaryColor = auth.DefaultBranding(cfg.ID).PrimaryColor
	}
	if cfg.Branding.SecondaryColor == "" {
		cfg.Branding.SecondaryColor = auth.DefaultBranding(cfg.ID).SecondaryColor
	}
	return &cfg, nil
}
