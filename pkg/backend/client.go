package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
)

// Client talks to the three backend functions (invoice, store, fulfillment)
// over their fixed JSON-over-POST contracts.
type Client struct {
	httpc          *http.Client
	invoiceURL     string
	storeURL       string
	fulfillmentURL string
	retries        uint
	retryDelay     time.Duration
}

type Options struct {
	InvoiceURL     string
	StoreURL       string
	FulfillmentURL string
	Retries        uint
	RetryDelay     time.Duration
	HTTPClient     *http.Client
}

func NewClient(opts Options) *Client {
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Retries == 0 {
		opts.Retries = 3
	}
	return &Client{
		httpc:          httpc,
		invoiceURL:     opts.InvoiceURL,
		storeURL:       opts.StoreURL,
		fulfillmentURL: opts.FulfillmentURL,
		retries:        opts.Retries,
		retryDelay:     opts.RetryDelay,
	}
}

// postJSON posts body to url and decodes the response into out. A non-2xx
// status is an error carrying the response text.
func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("bad status code: %v %v %v", resp.StatusCode, url, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrapf(err, "decode response %q", string(respBody))
		}
	}
	return nil
}
