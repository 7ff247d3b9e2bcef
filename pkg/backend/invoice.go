package backend

import (
	"context"

	"github.com/go-faster/errors"
)

// Invoice is an issued payment request together with its settlement-lookup
// key. Both strings are opaque to this service.
type Invoice struct {
	PaymentRequest string `json:"payment_request"`
	PaymentHash    string `json:"payment_hash"`
}

// ErrInvalidInvoice means the invoice service answered without both fields.
var ErrInvalidInvoice = errors.New("invalid invoice response: missing payment_request or payment_hash")

// CreateInvoice requests a payment invoice for the given amount in sats.
// Invoice creation is not retried: a failure is fatal for the attempt.
func (c *Client) CreateInvoice(ctx context.Context, amountSats int64, memo string) (Invoice, error) {
	req := struct {
		Action string `json:"action"`
		Amount int64  `json:"amount"`
		Memo   string `json:"memo"`
	}{Action: "createInvoice", Amount: amountSats, Memo: memo}
	var inv Invoice
	if err := c.postJSON(ctx, c.invoiceURL, req, &inv); err != nil {
		return Invoice{}, errors.Wrap(err, "create invoice")
	}
	if inv.PaymentRequest == "" || inv.PaymentHash == "" {
		return Invoice{}, ErrInvalidInvoice
	}
	return inv, nil
}

// CheckInvoice reports whether the invoice behind the settlement-lookup key
// has been paid.
func (c *Client) CheckInvoice(ctx context.Context, paymentHash string) (bool, error) {
	req := struct {
		Action    string `json:"action"`
		InvoiceID string `json:"invoiceId"`
	}{Action: "checkInvoice", InvoiceID: paymentHash}
	var resp struct {
		Settled bool `json:"settled"`
	}
	if err := c.postJSON(ctx, c.invoiceURL, req, &resp); err != nil {
		return false, errors.Wrap(err, "check invoice")
	}
	return resp.Settled, nil
}
