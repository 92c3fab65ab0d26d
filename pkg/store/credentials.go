package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PutCredential stores or replaces an org's API key for a provider
func (s *Store) PutCredential(ctx context.Context, orgID, provider, apiKey string) error {
	if orgID == "" || provider == "" {
		return fmt.Errorf("org id and provider are required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO org_credentials (org_id, provider, api_key) VALUES (?, ?, ?)
		ON CONFLICT(org_id, provider) DO UPDATE SET api_key = excluded.api_key`,
		orgID, provider, apiKey)
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// GetCredential returns the org's API key for a provider, or ErrNotFound
func (s *Store) GetCredential(ctx context.Context, orgID, provider string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT api_key FROM org_credentials WHERE org_id = ? AND provider = ?`, orgID, provider)

	var apiKey string
	err := row.Scan(&apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	return apiKey, nil
}
