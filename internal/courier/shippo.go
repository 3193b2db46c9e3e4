// Package courier es el cliente HTTP contra Shippo (tracking) y el
// endpoint Lambda que arma las etiquetas de envío.
package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dissonant-backend/internal/address"
	"dissonant-backend/internal/model"
	"dissonant-backend/internal/tracking"
)

const shippoBaseURL = "https://api.goshippo.com"

type Client struct {
	token         string
	labelEndpoint string
	baseURL       string
	client        *http.Client
}

// NewClient arma el cliente con timeout fijo de 30s por llamada. No hay
// cancelación cooperativa más allá del ctx: un timeout cuenta como fallo
// y lo maneja el presupuesto de reintentos del caller.
func NewClient(token, labelEndpoint string) *Client {
	return &Client{
		token:         token,
		labelEndpoint: labelEndpoint,
		baseURL:       shippoBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetTrackingStatus consulta el estado actual de un tracking number.
// Shippo devuelve el estado anidado en tracking_status.
func (c *Client) GetTrackingStatus(ctx context.Context, carrier, trackingNumber string) (*tracking.RawStatus, error) {
	url := fmt.Sprintf("%s/tracks/%s/%s", c.baseURL, carrier, trackingNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "ShippoToken "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("courier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("courier devolvió %d: %s", resp.StatusCode, string(body))
	}

	var raw tracking.RawStatus
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// RegisterTracking registra un tracking number existente en Shippo para
// que empiecen a llegar webhooks cuando cambie el estado.
func (c *Client) RegisterTracking(ctx context.Context, carrier, trackingNumber, metadata string) error {
	payload := map[string]string{
		"carrier":         carrier,
		"tracking_number": trackingNumber,
		"metadata":        metadata,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tracks/", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "ShippoToken "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("courier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("registro de tracking devolvió %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

type Parcel struct {
	Length       float64 `json:"length"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	DistanceUnit string  `json:"distance_unit"`
	Weight       float64 `json:"weight"`
	MassUnit     string  `json:"mass_unit"`
}

type LabelRequest struct {
	FromAddress   address.Address `json:"from_address"`
	ToAddress     address.Address `json:"to_address"`
	Parcel        Parcel          `json:"parcel"`
	OrderID       string          `json:"order_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
}

type LabelResult struct {
	Success       bool             `json:"success"`
	OutboundLabel *model.LabelInfo `json:"outbound_label,omitempty"`
	// La etiqueta de retorno es scan-based: solo se cobra si se usa.
	ReturnLabel *model.LabelInfo `json:"return_label,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// CreateLabels llama al endpoint Lambda que cotiza y compra las etiquetas
// (ida + retorno scan-based) en una sola pasada.
func (c *Client) CreateLabels(ctx context.Context, req LabelRequest) (*LabelResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.labelEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("label request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("creación de etiquetas devolvió %d: %s", resp.StatusCode, string(respBody))
	}

	var result LabelResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
