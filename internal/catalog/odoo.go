package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/kolo/xmlrpc"
)

// OdooClient is the fallback catalog backend. The shop mirrors its card
// inventory in Odoo; products carry the set and collector number in
// default_code as "SET/NUMBER". Prices there are list prices in the
// configured currency.
type OdooClient struct {
	URL      string
	Database string
	Username string
	Password string
	Currency string

	mu  sync.Mutex
	uid int
}

// NewOdooClient creates the XML-RPC fallback backend
func NewOdooClient(url, db, username, password, currency string) *OdooClient {
	return &OdooClient{
		URL:      url,
		Database: db,
		Username: username,
		Password: password,
		Currency: currency,
	}
}

func (c *OdooClient) Code() string { return "odoo" }

// authenticate resolves and caches the Odoo user id
func (c *OdooClient) authenticate() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uid != 0 {
		return c.uid, nil
	}

	client, err := xmlrpc.NewClient(c.URL+"/xmlrpc/2/common", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create XML-RPC client: %w", err)
	}
	defer client.Close()

	args := []interface{}{c.Database, c.Username, c.Password, make([]interface{}, 0)}
	var uid int
	if err := client.Call("authenticate", args, &uid); err != nil {
		return 0, fmt.Errorf("authentication failed: %w", err)
	}
	if uid == 0 {
		return 0, fmt.Errorf("odoo rejected credentials")
	}

	c.uid = uid
	return uid, nil
}

// odooProduct mirrors the product.template fields we read
type odooProduct struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	DefaultCode string  `json:"default_code"`
	ListPrice   float64 `json:"list_price"`
}

// Search runs search_read on product.template with an ilike name domain
// and post-filters on the default_code encoded set/number.
func (c *OdooClient) Search(ctx context.Context, q Query) ([]Entry, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("odoo fallback not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	uid, err := c.authenticate()
	if err != nil {
		return nil, err
	}

	client, err := xmlrpc.NewClient(c.URL+"/xmlrpc/2/object", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create XML-RPC client: %w", err)
	}
	defer client.Close()

	domain := []interface{}{
		[]interface{}{"sale_ok", "=", true},
	}
	if q.Name != "" {
		domain = append(domain, []interface{}{"name", "ilike", q.Name})
	}

	args := []interface{}{
		c.Database,
		uid,
		c.Password,
		"product.template",
		"search_read",
		[]interface{}{domain},
		map[string]interface{}{
			"fields": []string{"name", "default_code", "list_price"},
			"limit":  20,
		},
	}

	var rawResult []map[string]interface{}
	if err := client.Call("execute_kw", args, &rawResult); err != nil {
		return nil, fmt.Errorf("failed to execute search_read: %w", err)
	}

	// Odoo returns loosely typed maps; round-trip through JSON to structs
	jsonData, err := json.Marshal(rawResult)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw result: %w", err)
	}
	var products []odooProduct
	if err := json.Unmarshal(jsonData, &products); err != nil {
		return nil, fmt.Errorf("failed to unmarshal products: %w", err)
	}

	entries := make([]Entry, 0, len(products))
	for _, p := range products {
		setCode, number := splitDefaultCode(p.DefaultCode)
		if q.Number != "" && number != "" && !strings.EqualFold(number, q.Number) {
			continue
		}
		raw, _ := json.Marshal(p)
		entries = append(entries, Entry{
			ID:          fmt.Sprintf("odoo:%d", p.ID),
			Name:        p.Name,
			Number:      number,
			SetCode:     setCode,
			MarketPrice: p.ListPrice,
			Currency:    c.Currency,
			Raw:         raw,
		})
	}
	return entries, nil
}

// splitDefaultCode decodes "SET/NUMBER" style references
func splitDefaultCode(code string) (setCode, number string) {
	parts := strings.SplitN(code, "/", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}
