package clients

import (
	"context"
	"fmt"

	"pawedaran/internal/domain"
	ws "pawedaran/internal/transport/websocket"
)

type WebSocketClient struct {
	hub *ws.Hub
}

func NewWebSocketClient(hub *ws.Hub) *WebSocketClient {
	return &WebSocketClient{
		hub: hub,
	}
}

// NotifyPaymentApplied tells the debt owner and every connected SUPERADMIN about a new ledger entry.
func (c *WebSocketClient) NotifyPaymentApplied(ctx context.Context, debt domain.Debt, payment domain.DebtPayment) error {
	if c == nil || c.hub == nil {
		return nil
	}

	data := map[string]interface{}{
		"debt_id":        debt.ID,
		"payment_id":     payment.ID,
		"amount":         payment.Amount,
		"paid_amount":    debt.PaidAmount,
		"remaining_debt": debt.RemainingDebt,
		"created_at":     payment.CreatedAt,
	}

	c.hub.Broadcast(debt.UserID, &ws.Message{
		Type:    "payment_applied",
		Channel: fmt.Sprintf("debt_payments#%d", debt.UserID),
		Data:    data,
	})
	c.hub.BroadcastAdmins(&ws.Message{
		Type:    "payment_applied",
		Channel: "debt_payments#admin",
		Data:    data,
	})
	return nil
}

func (c *WebSocketClient) NotifyExportProgress(
	ctx context.Context,
	userID int64,
	exportID string,
	progress float64,
	stage string,
) error {
	if c == nil || c.hub == nil {
		return nil
	}

	data := map[string]interface{}{
		"id":       exportID,
		"progress": progress,
	}
	if stage != "" {
		data["stage"] = stage
	}

	c.hub.Broadcast(userID, &ws.Message{
		Type:    "export_progress",
		Channel: fmt.Sprintf("export_progress#%d", userID),
		Data:    data,
	})
	return nil
}

func (c *WebSocketClient) NotifyExportComplete(
	ctx context.Context,
	userID int64,
	exportID string,
	url string,
	filename string,
) error {
	if c == nil || c.hub == nil {
		return nil
	}

	c.hub.Broadcast(userID, &ws.Message{
		Type:    "export_complete",
		Channel: fmt.Sprintf("export_complete#%d", userID),
		Data: map[string]interface{}{
			"id":       exportID,
			"url":      url,
			"filename": filename,
		},
	})
	return nil
}

func (c *WebSocketClient) NotifyExportFailed(ctx context.Context, userID int64, exportID string, errMsg string) error {
	if c == nil || c.hub == nil {
		return nil
	}

	c.hub.Broadcast(userID, &ws.Message{
		Type:    "export_failed",
		Channel: fmt.Sprintf("export_failed#%d", userID),
		Data: map[string]interface{}{
			"id":      exportID,
			"message": errMsg,
		},
	})
	return nil
}
