package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// CardbaseClient queries the Cardbase cards API (REST/JSON)
type CardbaseClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewCardbaseClient creates the primary catalog-search backend
func NewCardbaseClient(baseURL, apiKey string) *CardbaseClient {
	return &CardbaseClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *CardbaseClient) Code() string { return "cardbase" }

// cardbaseCard mirrors the API's card object
type cardbaseCard struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Number  string `json:"number"`
	Set     string `json:"set"`
	SetName string `json:"set_name"`
	Images  struct {
		Small string `json:"small"`
	} `json:"images"`
	Prices struct {
		Market   float64  `json:"market"`
		Currency string   `json:"currency"`
		PSA10    *float64 `json:"psa10,omitempty"`
	} `json:"prices"`
}

// Search issues GET /cards?name=&number=&set= and maps the response
func (c *CardbaseClient) Search(ctx context.Context, q Query) ([]Entry, error) {
	params := url.Values{}
	if q.Name != "" {
		params.Set("name", q.Name)
	}
	if q.Number != "" {
		params.Set("number", q.Number)
	}
	if q.SetCode != "" {
		params.Set("set", q.SetCode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/cards?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cardbase request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cardbase read failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cardbase returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Cards []cardbaseCard `json:"cards"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("cardbase decode failed: %w", err)
	}

	entries := make([]Entry, 0, len(payload.Cards))
	for _, card := range payload.Cards {
		raw, _ := json.Marshal(card)
		currency := card.Prices.Currency
		if currency == "" {
			currency = "EUR"
		}
		entry := Entry{
			ID:          card.ID,
			Name:        card.Name,
			Number:      card.Number,
			SetCode:     card.Set,
			SetName:     card.SetName,
			ImageURL:    card.Images.Small,
			MarketPrice: card.Prices.Market,
			Currency:    currency,
			Raw:         raw,
		}
		if card.Prices.PSA10 != nil {
			entry.GradedLabel = "PSA 10"
			entry.GradedPrice = card.Prices.PSA10
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
