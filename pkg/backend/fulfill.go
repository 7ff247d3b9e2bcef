package backend

import (
	"context"

	"github.com/avast/retry-go"
	"github.com/go-faster/errors"
)

// ProcessTransaction triggers the downstream payout or airtime dispatch for a
// persisted record. Attempts are bounded; the last error is returned on
// exhaustion. The caller must treat that as a reconciliation gap, not roll
// back the settlement.
func (c *Client) ProcessTransaction(ctx context.Context, docID string) error {
	req := struct {
		Action string `json:"action"`
		DocID  string `json:"docId"`
	}{Action: "processTransaction", DocID: docID}
	return retry.Do(func() error {
		var resp struct {
			Status  string `json:"status"`
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if err := c.postJSON(ctx, c.fulfillmentURL, req, &resp); err != nil {
			return err
		}
		if resp.Status != "success" {
			msg := resp.Message
			if msg == "" {
				msg = resp.Error
			}
			if msg == "" {
				msg = "fulfillment failed"
			}
			return errors.New(msg)
		}
		return nil
	}, retry.Attempts(c.retries), retry.Delay(c.retryDelay), retry.DelayType(retry.FixedDelay), retry.LastErrorOnly(true), retry.Context(ctx))
}
