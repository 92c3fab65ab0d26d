package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// CreateClient inserts a billing client
func (s *Store) CreateClient(ctx context.Context, c *Client) error {
	if c.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate client id: %w", err)
		}
		c.ID = id
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, org_id, name, email, balance_cents)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.OrgID, c.Name, c.Email, c.BalanceCents)
	if err != nil {
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}

// ListClients returns all clients of an org
func (s *Store) ListClients(ctx context.Context, orgID string) ([]*Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, name, email, balance_cents
		FROM clients WHERE org_id = ? ORDER BY name ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Name, &c.Email, &c.BalanceCents); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read clients: %w", err)
	}
	return clients, nil
}

// GetClient returns a client by id within an org
func (s *Store) GetClient(ctx context.Context, orgID, id string) (*Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, email, balance_cents
		FROM clients WHERE org_id = ? AND id = ?`, orgID, id)

	var c Client
	err := row.Scan(&c.ID, &c.OrgID, &c.Name, &c.Email, &c.BalanceCents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	return &c, nil
}

// CreateInvoice inserts an invoice
func (s *Store) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if inv.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate invoice id: %w", err)
		}
		inv.ID = id
	}
	if inv.Status == "" {
		inv.Status = "draft"
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, org_id, client_id, amount_cents, memo, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.OrgID, inv.ClientID, inv.AmountCents, inv.Memo, inv.Status, inv.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

// CountInvoices returns the number of invoices for an org
func (s *Store) CountInvoices(ctx context.Context, orgID string) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices WHERE org_id = ?`, orgID)

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count invoices: %w", err)
	}
	return n, nil
}
