package api

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chapsmart/chappay/internal/config"
	"github.com/chapsmart/chappay/pkg/convert"
	"github.com/chapsmart/chappay/pkg/rates"
	"github.com/chapsmart/chappay/pkg/session"
	"github.com/chapsmart/chappay/pkg/validate"
)

// rateProvider is the slice of the rates provider the handlers need.
type rateProvider interface {
	Current() rates.ExchangeRate
	Refresh() rates.ExchangeRate
}

type Handler struct {
	logger  *zap.Logger
	manager *session.Manager
	rates   rateProvider
	product config.Product
	variant config.VariantConfig
	convCfg convert.Config
}

func NewHandler(logger *zap.Logger, manager *session.Manager, rp rateProvider, product config.Product, variant config.VariantConfig) *Handler {
	return &Handler{
		logger:  logger,
		manager: manager,
		rates:   rp,
		product: product,
		variant: variant,
		convCfg: convert.Config{
			FeePercent:  variant.FeePercent,
			MinFiat:     variant.MinFiat,
			MaxFiat:     variant.MaxFiat,
			USDFiatRate: variant.USDFiatRate,
		},
	}
}

type submitRequest struct {
	Amount      string `json:"amount"`
	PhoneNumber string `json:"phoneNumber"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	// WidgetKey identifies the widget instance; one active session each
	WidgetKey string `json:"widgetKey"`
}

type fieldErrorsResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// validateSubmission runs the variant's field validators and returns either
// the per-field messages or a session request ready to run.
func (h *Handler) validateSubmission(req submitRequest) (session.Request, map[string]string) {
	fields := map[string]validate.Result{}
	fields["amount"] = validate.Amount(req.Amount, h.convCfg)

	var phone validate.Result
	switch h.product {
	case config.ProductPayout:
		phone = validate.PhoneMpesa(req.PhoneNumber)
		fields["name"] = validate.Name(req.Name)
	default:
		phone = validate.PhoneIntl(req.PhoneNumber)
	}
	fields["phoneNumber"] = phone
	fields["description"] = validate.Description(req.Description)

	messages := map[string]string{}
	for field, res := range fields {
		if !res.Valid {
			messages[field] = res.Message
		}
	}
	if len(messages) > 0 {
		h.logger.Debug("submission rejected", zap.Error(validate.Collect(fields)))
		return session.Request{}, messages
	}

	amount, _ := decimal.NewFromString(fields["amount"].Normalized)
	quote, err := convert.Convert(amount, h.rates.Current().BTCUSD, h.convCfg)
	if err != nil {
		return session.Request{}, map[string]string{"amount": err.Error()}
	}

	description := fields["description"].Normalized
	name := ""
	if res, ok := fields["name"]; ok {
		name = res.Normalized
	}
	if description == "" && name != "" {
		description = "ChapSmart Payment to " + name
	}

	return session.Request{
		FiatAmount:    quote.FiatAmount.String(),
		BaseSats:      quote.BaseSats,
		TotalSats:     quote.TotalSats,
		PhoneNumber:   phone.Normalized,
		RecipientName: name,
		Description:   description,
		MemoPrefix:    h.variant.MemoPrefix,
	}, nil
}

// CreateSession validates a submission and starts the payment session. The
// response carries the invoice-free snapshot; the invoice appears on the
// snapshot once issued.
func (h *Handler) CreateSession(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.WidgetKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "widgetKey is required"})
		return
	}

	// Fresh rate before each submission, per the widget's behavior.
	h.rates.Refresh()

	sessReq, fieldErrs := h.validateSubmission(req)
	if fieldErrs != nil {
		c.JSON(http.StatusUnprocessableEntity, fieldErrorsResponse{
			Error:  "validation failed",
			Fields: fieldErrs,
		})
		return
	}

	// The session must outlive this request: it runs on the manager's own
	// context, not the request-scoped one.
	ctrl, err := h.manager.Start(req.WidgetKey, sessReq)
	if err != nil {
		if err == session.ErrSessionActive {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to start session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start session"})
		return
	}
	c.JSON(http.StatusCreated, ctrl.Snapshot())
}

// GetSession returns the current snapshot of a session.
func (h *Handler) GetSession(c *gin.Context) {
	ctrl, ok := h.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

type rateResponse struct {
	BTCUSD      float64 `json:"btcUsd"`
	Source      string  `json:"source"`
	UpdatedAt   int64   `json:"updatedAt"`
	FeePercent  float64 `json:"feePercent"`
	MinFiat     int64   `json:"minFiat"`
	MaxFiat     int64   `json:"maxFiat"`
	USDFiatRate float64 `json:"usdFiatRate"`
	// SatsPerFiat lets the widget preview conversions between refreshes
	SatsPerFiat float64 `json:"satsPerFiat"`
}

// GetRate exposes the current rate plus the variant constants the widget
// needs to render live previews.
func (h *Handler) GetRate(c *gin.Context) {
	rate := h.rates.Current()
	satsPerFiat := 0.0
	if rate.BTCUSD > 0 {
		satsPerFiat = 100_000_000 / h.convCfg.USDFiatRate / rate.BTCUSD
	}
	if math.IsInf(satsPerFiat, 0) || math.IsNaN(satsPerFiat) {
		satsPerFiat = 0
	}
	c.JSON(http.StatusOK, rateResponse{
		BTCUSD:      rate.BTCUSD,
		Source:      rate.Source,
		UpdatedAt:   rate.UpdatedAt.Unix(),
		FeePercent:  h.convCfg.FeePercent,
		MinFiat:     h.convCfg.MinFiat,
		MaxFiat:     h.convCfg.MaxFiat,
		USDFiatRate: h.convCfg.USDFiatRate,
		SatsPerFiat: satsPerFiat,
	})
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
