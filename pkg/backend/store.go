package backend

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// TransactionRecord is the durable form of a settled payment session. Both
// the base sats amount and the fee-adjusted invoiced amount are kept so the
// fee share is reconstructible.
type TransactionRecord struct {
	TxID          string    `json:"transactionId"`
	Amount        string    `json:"amount"` // fiat, canonical decimal form
	AmountSats    int64     `json:"amountSats"`
	TotalSats     int64     `json:"totalSats"`
	PhoneNumber   string    `json:"phoneNumber"`
	RecipientName string    `json:"mpesaName,omitempty"`
	Description   string    `json:"description,omitempty"`
	Invoice       string    `json:"invoice"`
	PaymentHash   string    `json:"paymentHash"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AddTransaction persists the record and returns the store's identifier,
// which fulfillment requires as input.
func (c *Client) AddTransaction(ctx context.Context, rec TransactionRecord) (string, error) {
	req := struct {
		Action string            `json:"action"`
		Data   TransactionRecord `json:"data"`
	}{Action: "addTransaction", Data: rec}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, c.storeURL, req, &resp); err != nil {
		return "", errors.Wrap(err, "add transaction")
	}
	if resp.ID == "" {
		return "", errors.New("store response missing id")
	}
	return resp.ID, nil
}
