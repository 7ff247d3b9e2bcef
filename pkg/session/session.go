package session

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of one payment attempt.
type State string

const (
	StateIdle              State = "idle"
	StateAwaitingInvoice   State = "awaiting_invoice"
	StateInvoiceDisplayed  State = "invoice_displayed"
	StateSettling          State = "settling"
	StateFulfilling        State = "fulfilling"
	StateFulfilled         State = "fulfilled"
	StateFulfillmentFailed State = "fulfillment_failed"
	StateTimedOut          State = "timed_out"
	StateCancelled         State = "cancelled"
	StateInvoiceError      State = "invoice_error"
)

// Terminal reports whether the attempt is over. A terminal session never
// transitions again; the user must resubmit to start a new one.
func (s State) Terminal() bool {
	switch s {
	case StateFulfilled, StateFulfillmentFailed, StateTimedOut, StateCancelled, StateInvoiceError:
		return true
	}
	return false
}

// Request is a validated submission, ready to turn into an invoice.
type Request struct {
	FiatAmount    string // canonical decimal form
	BaseSats      int64
	TotalSats     int64 // fee-adjusted, what the invoice requests
	PhoneNumber   string
	RecipientName string
	Description   string
	MemoPrefix    string
}

// Memo builds the invoice memo carrying the transaction identifier and the
// recipient reference end-to-end.
func (r Request) Memo(txID string) string {
	return fmt.Sprintf("%s TX:%s for %s", r.MemoPrefix, txID, r.PhoneNumber)
}

// Snapshot is a read-only copy of the session for the presentation layer.
type Snapshot struct {
	ID             string    `json:"id"`
	TxID           string    `json:"txId"`
	State          State     `json:"state"`
	FiatAmount     string    `json:"fiatAmount"`
	BaseSats       int64     `json:"amountSats"`
	TotalSats      int64     `json:"totalSats"`
	PhoneNumber    string    `json:"phoneNumber"`
	PaymentRequest string    `json:"paymentRequest,omitempty"`
	PaymentHash    string    `json:"paymentHash,omitempty"`
	Message        string    `json:"message,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt,omitempty"`
}

// Event is one state transition pushed to subscribers.
type Event struct {
	SessionID string    `json:"sessionId"`
	State     State     `json:"state"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// CancelFn has to be called to unsubscribe.
type CancelFn func()

func newSessionID() string {
	return uuid.New().String()
}

// newTxID generates the opaque transaction identifier embedded in the memo,
// TX_<millis>_<random>.
func newTxID() string {
	return fmt.Sprintf("TX_%d_%d", time.Now().UnixMilli(), rand.Intn(10000))
}
