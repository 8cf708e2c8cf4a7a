// Package bank talks to the external bank-transaction provider. The engine
// only consumes the transaction stream; authentication and pagination
// mechanics live here.
package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Transaction is one settled bank movement as the provider reports it.
// AmountCents is signed: positive means money in (credit direction).
type Transaction struct {
	ID           string    `json:"id"`
	AmountCents  int64     `json:"amount_cents"`
	Currency     string    `json:"currency"`
	Reference    string    `json:"reference"`
	Counterparty string    `json:"counterparty_name"`
	SettledAt    time.Time `json:"settled_at"`
}

// Credit reports whether the transaction brings money in; only these are
// eligible for invoice matching.
func (t Transaction) Credit() bool { return t.AmountCents > 0 }

// Page is one page of the provider's transaction listing.
type Page struct {
	Transactions []Transaction `json:"transactions"`
	Meta         struct {
		NextPage *int `json:"next_page"`
	} `json:"meta"`
}

// Client is a thin HTTP client over the provider's REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchTransactions loads one page. A non-2xx status or an undecodable body
// is reported as an error; the caller maps it to its external-service
// failure taxonomy.
func (c *Client) FetchTransactions(ctx context.Context, since *time.Time, page, perPage int) (Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	if since != nil {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transactions?"+q.Encode(), nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("bank api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Page{}, fmt.Errorf("bank api status %d: %s", resp.StatusCode, body)
	}
	var p Page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Page{}, fmt.Errorf("bank api payload: %w", err)
	}
	return p, nil
}

// FetchAll walks the pagination until the provider stops returning a next
// page.
func (c *Client) FetchAll(ctx context.Context, since *time.Time, perPage int) ([]Transaction, error) {
	var out []Transaction
	page := 1
	for {
		p, err := c.FetchTransactions(ctx, since, page, perPage)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Transactions...)
		if p.Meta.NextPage == nil {
			return out, nil
		}
		page = *p.Meta.NextPage
	}
}
