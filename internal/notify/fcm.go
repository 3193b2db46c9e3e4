// Package notify manda los push FCM al curador cuando se le asigna una orden.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const fcmSendURL = "https://fcm.googleapis.com/fcm/send"

type Client struct {
	serverKey string
	endpoint  string
	client    *http.Client
}

func NewClient(serverKey string) *Client {
	return &Client{
		serverKey: serverKey,
		endpoint:  fcmSendURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NotifyCuratorAssignment manda la notificación al device del curador y
// también al topic curator_{id} como respaldo. Implementa service.Notifier.
func (c *Client) NotifyCuratorAssignment(ctx context.Context, token, orderID, curatorID, customerName string) error {
	if customerName == "" {
		customerName = "A customer"
	}

	notification := map[string]string{
		"title": "New Curator Order!",
		"body":  fmt.Sprintf("%s has requested your curation expertise", customerName),
	}
	data := map[string]string{
		"type":      "curator_order",
		"orderId":   orderID,
		"curatorId": curatorID,
	}

	if err := c.send(ctx, map[string]any{
		"to":           token,
		"notification": notification,
		"data":         data,
	}); err != nil {
		return err
	}

	// Topic de respaldo por si el token directo quedó viejo.
	return c.send(ctx, map[string]any{
		"to":           "/topics/curator_" + curatorID,
		"notification": notification,
		"data":         data,
	})
}

func (c *Client) send(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "key="+c.serverKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fcm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("fcm devolvió %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
