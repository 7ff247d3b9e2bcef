package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chapsmart/chappay/pkg/backend"
)

// Backend is the slice of the backend client the controller drives.
// *backend.Client satisfies it; tests substitute fakes.
type Backend interface {
	CreateInvoice(ctx context.Context, amountSats int64, memo string) (backend.Invoice, error)
	CheckInvoice(ctx context.Context, paymentHash string) (bool, error)
	AddTransaction(ctx context.Context, rec backend.TransactionRecord) (string, error)
	ProcessTransaction(ctx context.Context, docID string) error
}

type Options struct {
	// InvoiceTTL is the countdown from invoice display to timeout
	InvoiceTTL   time.Duration
	PollInterval time.Duration
	// ReportFn receives reconciliation alerts (settled but not fulfilled).
	// May be nil.
	ReportFn func(title string, data map[string]any)
}

// Controller drives one payment attempt through its lifecycle. All state
// transitions go through tryTransition, which is the idempotency guard: a
// settlement observed after timeout (or any other stale event) is a no-op.
type Controller struct {
	logger  *zap.Logger
	backend Backend
	opts    Options
	req     Request

	mu       sync.Mutex
	state    State
	snapshot Snapshot

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int

	done chan struct{}
}

func NewController(logger *zap.Logger, b Backend, req Request, opts Options) *Controller {
	if opts.InvoiceTTL == 0 {
		opts.InvoiceTTL = 13 * time.Minute
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Second
	}
	c := &Controller{
		logger:  logger,
		backend: b,
		opts:    opts,
		req:     req,
		state:   StateIdle,
		subs:    map[int]func(Event){},
		done:    make(chan struct{}),
	}
	c.snapshot = Snapshot{
		ID:          newSessionID(),
		TxID:        newTxID(),
		State:       StateIdle,
		FiatAmount:  req.FiatAmount,
		BaseSats:    req.BaseSats,
		TotalSats:   req.TotalSats,
		PhoneNumber: req.PhoneNumber,
		CreatedAt:   time.Now(),
	}
	return c
}

func (c *Controller) ID() string {
	return c.snapshot.ID
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Done is closed when the session reaches a terminal state.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Subscribe registers fn for every subsequent state transition and replays
// the current state once so late subscribers are not blind.
func (c *Controller) Subscribe(fn func(Event)) CancelFn {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	snap := c.Snapshot()
	fn(Event{SessionID: snap.ID, State: snap.State, Message: snap.Message, At: time.Now()})

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs, id)
	}
}

// tryTransition moves the session from one specific state to another. It
// returns false when the session is no longer in the expected state, which
// is how stale events (late settlements, late timeouts) get dropped.
func (c *Controller) tryTransition(from, to State, msg string) bool {
	c.mu.Lock()
	if c.state != from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.snapshot.State = to
	c.snapshot.Message = msg
	ev := Event{SessionID: c.snapshot.ID, State: to, Message: msg, At: time.Now()}
	c.mu.Unlock()

	c.publish(ev)
	if to.Terminal() {
		outcomesCounter.WithLabelValues(string(to)).Inc()
		close(c.done)
	}
	return true
}

func (c *Controller) publish(ev Event) {
	c.subMu.Lock()
	fns := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Run executes the whole lifecycle and returns the terminal state. It blocks
// until the session is over or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) State {
	if !c.tryTransition(StateIdle, StateAwaitingInvoice, "") {
		return c.Snapshot().State
	}

	inv, err := c.backend.CreateInvoice(ctx, c.req.TotalSats, c.req.Memo(c.snapshot.TxID))
	if err != nil {
		c.logger.Error("invoice creation failed",
			zap.String("session", c.snapshot.ID), zap.Error(err))
		c.tryTransition(StateAwaitingInvoice, StateInvoiceError, err.Error())
		return StateInvoiceError
	}

	displayedAt := time.Now()
	c.mu.Lock()
	c.snapshot.PaymentRequest = inv.PaymentRequest
	c.snapshot.PaymentHash = inv.PaymentHash
	c.snapshot.ExpiresAt = displayedAt.Add(c.opts.InvoiceTTL)
	c.mu.Unlock()

	c.tryTransition(StateAwaitingInvoice, StateInvoiceDisplayed, "")
	c.tryTransition(StateInvoiceDisplayed, StateSettling, "")

	settled := c.poll(ctx, inv.PaymentHash)
	if !settled {
		// No persistence happens on either exit. A shutdown-interrupted
		// session is labelled distinctly from the expired countdown.
		if ctx.Err() != nil {
			c.tryTransition(StateSettling, StateCancelled, "Session cancelled before settlement.")
		} else {
			c.tryTransition(StateSettling, StateTimedOut, "Payment confirmation timed out.")
		}
		return c.Snapshot().State
	}

	// At-most-one settlement transition: if the timeout already won the
	// race this settlement is stale and must not trigger fulfillment.
	if !c.tryTransition(StateSettling, StateFulfilling, "") {
		return c.Snapshot().State
	}
	settleLatencyHistogram.Observe(time.Since(displayedAt).Seconds())
	c.fulfill(ctx, inv)
	return c.Snapshot().State
}

// poll queries settlement status until settled, timed out, or cancelled.
// Individual poll failures are swallowed: only the deadline ends the loop.
func (c *Controller) poll(ctx context.Context, paymentHash string) bool {
	deadline := time.NewTimer(c.opts.InvoiceTTL)
	defer deadline.Stop()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		settled, err := c.backend.CheckInvoice(ctx, paymentHash)
		if err != nil {
			c.logger.Debug("poll attempt failed",
				zap.String("session", c.snapshot.ID), zap.Error(err))
		} else if settled {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
		}
	}
}

// fulfill persists the record and triggers the downstream dispatch. The
// settlement already happened: a failure here is a reconciliation gap and is
// reported as such, never rolled back.
func (c *Controller) fulfill(ctx context.Context, inv backend.Invoice) {
	rec := backend.TransactionRecord{
		TxID:          c.snapshot.TxID,
		Amount:        c.req.FiatAmount,
		AmountSats:    c.req.BaseSats,
		TotalSats:     c.req.TotalSats,
		PhoneNumber:   c.req.PhoneNumber,
		RecipientName: c.req.RecipientName,
		Description:   c.req.Description,
		Invoice:       inv.PaymentRequest,
		PaymentHash:   inv.PaymentHash,
		Status:        "pending",
		CreatedAt:     time.Now(),
	}
	docID, err := c.backend.AddTransaction(ctx, rec)
	if err != nil {
		c.reportReconciliationGap("transaction persistence failed", err)
		c.tryTransition(StateFulfilling, StateFulfillmentFailed, err.Error())
		return
	}
	if err := c.backend.ProcessTransaction(ctx, docID); err != nil {
		c.reportReconciliationGap("fulfillment failed after persistence", err)
		c.tryTransition(StateFulfilling, StateFulfillmentFailed, err.Error())
		return
	}
	c.tryTransition(StateFulfilling, StateFulfilled, "")
}

func (c *Controller) reportReconciliationGap(title string, err error) {
	c.logger.Error(title,
		zap.String("session", c.snapshot.ID),
		zap.String("tx_id", c.snapshot.TxID),
		zap.Error(err))
	if c.opts.ReportFn != nil {
		c.opts.ReportFn(title, map[string]any{
			"session_id":   c.snapshot.ID,
			"tx_id":        c.snapshot.TxID,
			"payment_hash": c.snapshot.PaymentHash,
			"error":        err.Error(),
		})
	}
}
