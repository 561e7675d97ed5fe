// Package shoper talks to the Shoper REST admin API for product creation.
package shoper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kartoteka-app/kartotekago/internal/models"
)

// ProductImage is one product photo, either hosted or inlined
type ProductImage struct {
	URL    string `json:"url,omitempty"`
	Base64 string `json:"content,omitempty"`
	Name   string `json:"name,omitempty"`
	Main   bool   `json:"main"`
}

// ProductPayload is the product creation request body
type ProductPayload struct {
	CategoryID  int64          `json:"category_id"`
	Code        string         `json:"code"`
	Name        string         `json:"name"`
	Price       float64        `json:"price"`
	Currency    string         `json:"currency"`
	StockQty    int            `json:"stock_qty"`
	Description string         `json:"description,omitempty"`
	Warehouse   string         `json:"warehouse,omitempty"`
	Images      []ProductImage `json:"images,omitempty"`
}

// Client is a Shoper REST API client
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a Shoper client with a bearer token
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateProduct submits a product and returns the new product id.
// A 4xx reply surfaces as *models.MarketplaceError with the API's
// validation detail untouched; transport failures come back wrapped.
func (c *Client) CreateProduct(ctx context.Context, payload ProductPayload) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal product: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/webapi/rest/products", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("shoper request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("shoper read failed: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Shoper answers product creation with the bare numeric id
		var id int64
		if err := json.Unmarshal(respBody, &id); err != nil {
			return 0, fmt.Errorf("unexpected shoper response: %s", string(respBody))
		}
		return id, nil
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		mErr := &models.MarketplaceError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
		var parsed struct {
			Error            string                 `json:"error"`
			ErrorDescription string                 `json:"error_description"`
			Details          map[string]interface{} `json:"details"`
		}
		if err := json.Unmarshal(respBody, &parsed); err == nil {
			if parsed.ErrorDescription != "" {
				mErr.Message = parsed.ErrorDescription
			} else if parsed.Error != "" {
				mErr.Message = parsed.Error
			}
			mErr.Details = parsed.Details
		}
		return 0, mErr
	}

	return 0, fmt.Errorf("shoper returned %d: %s", resp.StatusCode, string(respBody))
}
