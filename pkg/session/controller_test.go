package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chapsmart/chappay/pkg/backend"
)

// fakeBackend scripts the three backend services for controller tests.
type fakeBackend struct {
	invoice    backend.Invoice
	invoiceErr error

	// settleAfter is the number of checkInvoice calls before settled=true;
	// negative means never settle.
	settleAfter int
	checkErrs   int // this many transport errors before answers start
	checkCalls  int32

	persistErr   error
	persistCalls int32
	docID        string

	fulfillErr   error
	fulfillCalls int32
}

func (f *fakeBackend) CreateInvoice(ctx context.Context, amountSats int64, memo string) (backend.Invoice, error) {
	if f.invoiceErr != nil {
		return backend.Invoice{}, f.invoiceErr
	}
	return f.invoice, nil
}

func (f *fakeBackend) CheckInvoice(ctx context.Context, paymentHash string) (bool, error) {
	n := atomic.AddInt32(&f.checkCalls, 1)
	if int(n) <= f.checkErrs {
		return false, errors.New("transport error")
	}
	if f.settleAfter < 0 {
		return false, nil
	}
	return int(n) >= f.checkErrs+f.settleAfter, nil
}

func (f *fakeBackend) AddTransaction(ctx context.Context, rec backend.TransactionRecord) (string, error) {
	atomic.AddInt32(&f.persistCalls, 1)
	if f.persistErr != nil {
		return "", f.persistErr
	}
	if f.docID == "" {
		return "doc-1", nil
	}
	return f.docID, nil
}

func (f *fakeBackend) ProcessTransaction(ctx context.Context, docID string) error {
	atomic.AddInt32(&f.fulfillCalls, 1)
	return f.fulfillErr
}

func testRequest() Request {
	return Request{
		FiatAmount:  "1000",
		BaseSats:    558,
		TotalSats:   588,
		PhoneNumber: "255712345678",
		MemoPrefix:  "Airtime",
	}
}

func testOptions() Options {
	return Options{
		InvoiceTTL:   200 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}
}

func validInvoice() backend.Invoice {
	return backend.Invoice{PaymentRequest: "lnbc5880n1...", PaymentHash: "deadbeef"}
}

func TestRun_SettlesThenFulfills(t *testing.T) {
	fb := &fakeBackend{invoice: validInvoice(), settleAfter: 3}
	c := NewController(zap.NewNop(), fb, testRequest(), testOptions())

	state := c.Run(context.Background())
	require.Equal(t, StateFulfilled, state)
	require.Equal(t, int32(1), atomic.LoadInt32(&fb.persistCalls))
	require.Equal(t, int32(1), atomic.LoadInt32(&fb.fulfillCalls))
	require.GreaterOrEqual(t, atomic.LoadInt32(&fb.checkCalls), int32(3))
}

func TestRun_TimeoutWithoutSettlementSkipsPersistence(t *testing.T) {
	fb := &fakeBackend{invoice: validInvoice(), settleAfter: -1}
	c := NewController(zap.NewNop(), fb, testRequest(), testOptions())

	state := c.Run(context.Background())
	require.Equal(t, StateTimedOut, state)
	require.Zero(t, atomic.LoadInt32(&fb.persistCalls))
	require.Zero(t, atomic.LoadInt32(&fb.fulfillCalls))
}

func TestRun_PollTransportErrorsAreNonFatal(t *testing.T) {
	fb := &fakeBackend{invoice: validInvoice(), settleAfter: 1, checkErrs: 4}
	c := NewController(zap.NewNop(), fb, testRequest(), testOptions())

	state := c.Run(context.Background())
	require.Equal(t, StateFulfilled, state)
}

func TestRun_InvoiceErrorIsTerminal(t *testing.T) {
	fb := &fakeBackend{invoiceErr: errors.New("invoice service down")}
	c := NewController(zap.NewNop(), fb, testRequest(), testOptions())

	state := c.Run(context.Background())
	require.Equal(t, StateInvoiceError, state)
	require.Zero(t, atomic.LoadInt32(&fb.checkCalls))
	require.Contains(t, c.Snapshot().Message, "invoice service down")
}

func TestRun_FulfillmentFailureKeepsPersistedRecord(t *testing.T) {
	var reports []string
	fb := &fakeBackend{invoice: validInvoice(), settleAfter: 1, fulfillErr: errors.New("insufficient float")}
	opts := testOptions()
	opts.ReportFn = func(title string, data map[string]any) { reports = append(reports, title) }
	c := NewController(zap.NewNop(), fb, testRequest(), opts)

	state := c.Run(context.Background())
	require.Equal(t, StateFulfillmentFailed, state)
	// persistence happened and is not undone
	require.Equal(t, int32(1), atomic.LoadInt32(&fb.persistCalls))
	require.Len(t, reports, 1)
	require.Contains(t, c.Snapshot().Message, "insufficient float")
}

func TestStaleSettlementAfterTimeoutIsIgnored(t *testing.T) {
	fb := &fakeBackend{invoice: validInvoice(), settleAfter: -1}
	c := NewController(zap.NewNop(), fb, testRequest(), testOptions())

	state := c.Run(context.Background())
	require.Equal(t, StateTimedOut, state)

	// A settlement report arriving after the terminal state must not move
	// the session or trigger fulfillment.
	require.False(t, c.tryTransition(StateSettling, StateFulfilling, ""))
	require.Equal(t, StateTimedOut, c.Snapshot().State)
	require.Zero(t, atomic.LoadInt32(&fb.persistCalls))
}

func TestSubscribe_DeliversTransitionsAndCancelStops(t *testing.T) {
	fb := &fakeBackend{invoice: validInvoice(), settleAfter: 1}
	c := NewController(zap.NewNop(), fb, testRequest(), testOptions())

	var mu sync.Mutex
	var seen []State
	cancel := c.Subscribe(func(ev Event) {
		mu.Lock()
		seen = append(seen, ev.State)
		mu.Unlock()
	})

	state := c.Run(context.Background())
	require.Equal(t, StateFulfilled, state)

	mu.Lock()
	got := append([]State(nil), seen...)
	mu.Unlock()
	require.Equal(t, []State{StateIdle, StateAwaitingInvoice, StateInvoiceDisplayed,
		StateSettling, StateFulfilling, StateFulfilled}, got)

	cancel()
	require.False(t, c.tryTransition(StateFulfilled, StateIdle, ""))
}

func TestRun_ContextCancellationEndsSession(t *testing.T) {
	fb := &fakeBackend{invoice: validInvoice(), settleAfter: -1}
	opts := testOptions()
	opts.InvoiceTTL = time.Hour
	c := NewController(zap.NewNop(), fb, testRequest(), opts)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	state := c.Run(ctx)
	// Shutdown is not a timeout: the session is marked cancelled, and still
	// nothing gets persisted.
	require.Equal(t, StateCancelled, state)
	require.Equal(t, "Session cancelled before settlement.", c.Snapshot().Message)
	require.Zero(t, atomic.LoadInt32(&fb.persistCalls))
}

func TestMemoCarriesTxIDAndRecipient(t *testing.T) {
	req := testRequest()
	memo := req.Memo("TX_123_456")
	require.Equal(t, "Airtime TX:TX_123_456 for 255712345678", memo)
}
