package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/layer-3/paygate/codec"
	"github.com/layer-3/paygate/core"
	"github.com/layer-3/paygate/ports"
	"github.com/layer-3/paygate/ratelimit"
	"github.com/layer-3/paygate/service"
)

// intentView is the JSON form of a decoded intent
type intentView struct {
	Version    string `json:"version"`
	Network    string `json:"network"`
	Payer      string `json:"payer"`
	Recipient  string `json:"recipient"`
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	ValidUntil int64  `json:"validUntil"`
	Nonce      string `json:"nonce"`
	Memo       string `json:"memo"`
	Signature  string `json:"signature"`
}

func viewOf(p *core.PaymentIntent) *intentView {
	if p == nil {
		return nil
	}
	v := intentView(*p)
	return &v
}

type expectedTerms struct {
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
	Token     string `json:"token"`
}

type payloadRequest struct {
	Payload  string        `json:"payload" binding:"required"`
	Expected expectedTerms `json:"expected"`
}

// PaymentHandlers contains HTTP handlers for payment endpoints
type PaymentHandlers struct {
	payments  *service.PaymentService
	tokenizer ports.Tokenizer
	passTTL   time.Duration
	logger    *slog.Logger
}

// NewPaymentHandlers creates new payment handlers
func NewPaymentHandlers(payments *service.PaymentService, tokenizer ports.Tokenizer, passTTL time.Duration, logger *slog.Logger) *PaymentHandlers {
	return &PaymentHandlers{
		payments:  payments,
		tokenizer: tokenizer,
		passTTL:   passTTL,
		logger:    logger,
	}
}

func bindPayload(c *gin.Context) (*payloadRequest, core.Expected, bool) {
	var req payloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return nil, core.Expected{}, false
	}
	if req.Expected.Amount != "" && !codec.ValidAmount(req.Expected.Amount) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expected amount must be a non-negative integer string"})
		return nil, core.Expected{}, false
	}
	return &req, core.Expected(req.Expected), true
}

// statusFor maps a locally produced result code to an HTTP status
func statusFor(code core.Code) int {
	switch code {
	case core.CodeNone:
		return http.StatusOK
	case core.CodeReplayDetected:
		return http.StatusConflict
	case core.CodeInternalError:
		return http.StatusInternalServerError
	case core.CodeInvalidPayload, core.CodePayloadExpired, core.CodeWrongNetwork, core.CodeInvalidSignature,
		core.CodeWrongRecipient, core.CodeWrongToken, core.CodeInsufficientAmount:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// settleStatusFor maps a settlement result by outcome first. Only results
// the facilitator never saw carry local codes; facilitator codes are
// opaque even when they spell a local one.
func settleStatusFor(res core.SettleResult) int {
	switch res.Outcome {
	case core.OutcomeSettled:
		return http.StatusOK
	case core.OutcomeUnknown:
		return http.StatusAccepted
	case core.OutcomeRejected:
		return http.StatusPaymentRequired
	}
	return statusFor(res.Error)
}

// VerifyLocal checks a payload's integrity, freshness and network
func (h *PaymentHandlers) VerifyLocal(c *gin.Context) {
	req, _, ok := bindPayload(c)
	if !ok {
		return
	}

	res := h.payments.VerifyLocal(c.Request.Context(), req.Payload)
	if !res.Valid {
		c.JSON(statusFor(res.Error), gin.H{"valid": false, "error": res.Error})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "payload": viewOf(res.Intent)})
}

// Verify checks a payload and its terms without consuming it
func (h *PaymentHandlers) Verify(c *gin.Context) {
	req, expected, ok := bindPayload(c)
	if !ok {
		return
	}

	res := h.payments.Verify(c.Request.Context(), req.Payload, expected)
	if !res.Valid {
		c.JSON(statusFor(res.Error), gin.H{"valid": false, "error": res.Error})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// Consume verifies and claims a payload, then issues an access pass
func (h *PaymentHandlers) Consume(c *gin.Context) {
	req, expected, ok := bindPayload(c)
	if !ok {
		return
	}

	res := h.payments.Consume(c.Request.Context(), req.Payload, expected)
	if !res.Valid {
		c.JSON(statusFor(res.Error), gin.H{"valid": false, "error": res.Error})
		return
	}

	now := time.Now()
	expiresAt := now.Add(h.passTTL)
	if until := res.Intent.ExpiresAt(); until.Before(expiresAt) {
		expiresAt = until
	}
	pass := &core.AccessPass{
		ID:        uuid.New().String(),
		Payer:     res.Intent.Payer,
		Recipient: res.Intent.Recipient,
		Memo:      res.Intent.Memo,
		Signature: res.Intent.Signature,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}

	token, err := h.tokenizer.PassToToken(pass)
	if err != nil {
		// The intent is already spent; the ledger entry proves it
		h.logger.Error("failed to issue access pass", "signature", pass.Signature, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"valid": true, "error": core.CodeInternalError})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":      true,
		"accessPass": token,
		"tokenType":  "Bearer",
		"expiresAt":  expiresAt.UnixMilli(),
		"entry":      res.Entry,
	})
}

// Settle forwards a payload to the facilitator
func (h *PaymentHandlers) Settle(c *gin.Context) {
	req, _, ok := bindPayload(c)
	if !ok {
		return
	}

	res := h.payments.Settle(c.Request.Context(), req.Payload)
	body := gin.H{"success": res.Success, "outcome": res.Outcome}
	if res.TransactionRef != "" {
		body["transactionRef"] = res.TransactionRef
	}
	if res.Error != core.CodeNone {
		body["error"] = res.Error
	}
	c.JSON(settleStatusFor(res), body)
}

// Status returns whether a signature was used and its ledger entry
func (h *PaymentHandlers) Status(c *gin.Context) {
	signature := c.Param("signature")

	st, err := h.payments.Status(c.Request.Context(), signature)
	if err != nil {
		h.logger.Error("failed to look up payment", "signature", signature, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up payment"})
		return
	}
	if !st.Used && st.Entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found", "used": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"signature": signature, "used": st.Used, "entry": st.Entry})
}

// Access returns the claims of the bearer's access pass
func (h *PaymentHandlers) Access(c *gin.Context) {
	pass, exists := c.Get(accessPassKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Access pass not found in context"})
		return
	}

	p := pass.(*core.AccessPass)
	c.JSON(http.StatusOK, gin.H{
		"id":        p.ID,
		"payer":     p.Payer,
		"recipient": p.Recipient,
		"memo":      p.Memo,
		"signature": p.Signature,
		"expiresAt": p.ExpiresAt.UnixMilli(),
	})
}

// AdminHandlers contains HTTP handlers for operator endpoints
type AdminHandlers struct {
	payments *service.PaymentService
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
}

// NewAdminHandlers creates new admin handlers
func NewAdminHandlers(payments *service.PaymentService, limiter *ratelimit.Limiter, logger *slog.Logger) *AdminHandlers {
	return &AdminHandlers{payments: payments, limiter: limiter, logger: logger}
}

type limitRequest struct {
	Class      string `json:"class" binding:"required"`
	Identifier string `json:"identifier" binding:"required"`
	DurationMs int64  `json:"durationMs"`
}

// Block denies an identifier for a duration
func (h *AdminHandlers) Block(c *gin.Context) {
	var req limitRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DurationMs <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	d := time.Duration(req.DurationMs) * time.Millisecond
	if err := h.limiter.Block(ratelimit.Class(req.Class), req.Identifier, d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown rate limit class"})
		return
	}
	h.logger.Info("identifier blocked by operator", "class", req.Class, "identifier", req.Identifier, "duration", d)
	c.JSON(http.StatusOK, gin.H{"blocked": true})
}

// Unblock clears an identifier's block and count
func (h *AdminHandlers) Unblock(c *gin.Context) {
	var req limitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	h.limiter.Unblock(ratelimit.Class(req.Class), req.Identifier)
	h.logger.Info("identifier unblocked by operator", "class", req.Class, "identifier", req.Identifier)
	c.JSON(http.StatusOK, gin.H{"blocked": false})
}

// Resolve records the outcome of a pending settlement
func (h *AdminHandlers) Resolve(c *gin.Context) {
	var req struct {
		Status      core.EntryStatus `json:"status" binding:"required"`
		Transaction string           `json:"transaction"`
		Slot        uint64           `json:"slot"`
		BlockTime   int64            `json:"blockTime"` // unix seconds
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var settlement *core.Settlement
	if req.Transaction != "" {
		settlement = &core.Settlement{Transaction: req.Transaction, Slot: req.Slot}
		if req.BlockTime > 0 {
			bt := time.Unix(req.BlockTime, 0).UTC()
			settlement.BlockTime = &bt
		}
	}

	entry, err := h.payments.Resolve(c.Request.Context(), c.Param("signature"), req.Status, settlement)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		case errors.Is(err, core.ErrNotPending):
			c.JSON(http.StatusConflict, gin.H{"error": "Payment is not pending"})
		case req.Status != core.StatusVerified && req.Status != core.StatusFailed:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Status must be verified or failed"})
		default:
			h.logger.Error("failed to resolve payment", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve payment"})
		}
		return
	}

	c.JSON(http.StatusOK, entry)
}
