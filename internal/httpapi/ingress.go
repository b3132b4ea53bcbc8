package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wagerSync/internal/ingest"
)

const (
	maxBodyBytes = 10 << 20
	secretHeader = "X-Webhook-Secret"
)

type WebhookReceiver interface {
	Receive(ctx context.Context, body []byte) (ingest.Ack, error)
}

type ScanReceiver interface {
	Receive(ctx context.Context, body []byte) (ingest.Summary, error)
}

// IngressHandler serves the provider callbacks. Secret, when set, must match
// the X-Webhook-Secret header on both endpoints.
type IngressHandler struct {
	Webhook WebhookReceiver
	Scan    ScanReceiver
	Secret  string
	Logger  *zap.Logger
}

func (h *IngressHandler) Register(r *gin.Engine) {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	if h.Webhook != nil {
		r.POST("/webhooks/evm", h.authorize, h.webhook)
	}
	if h.Scan != nil {
		r.POST("/scan/solana", h.authorize, h.scan)
	}
}

func (h *IngressHandler) authorize(c *gin.Context) {
	if h.Secret == "" {
		c.Next()
		return
	}
	got := c.GetHeader(secretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
		reject(c, http.StatusUnauthorized, "", "invalid webhook secret")
		return
	}
	c.Next()
}

func (h *IngressHandler) webhook(c *gin.Context) {
	body, ok := readBody(c, "webhook")
	if !ok {
		return
	}
	ack, err := h.Webhook.Receive(c.Request.Context(), body)
	if err != nil {
		h.fail(c, "webhook", err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

func (h *IngressHandler) scan(c *gin.Context) {
	body, ok := readBody(c, "scan")
	if !ok {
		return
	}
	summary, err := h.Scan.Receive(c.Request.Context(), body)
	if err != nil {
		h.fail(c, "scan", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *IngressHandler) fail(c *gin.Context, endpoint string, err error) {
	if errors.Is(err, ingest.ErrBadRequest) {
		h.Logger.Warn("rejected delivery", zap.String("endpoint", endpoint), zap.Error(err))
		reject(c, http.StatusBadRequest, endpoint, err.Error())
		return
	}
	h.Logger.Error("delivery failed", zap.String("endpoint", endpoint), zap.Error(err))
	reject(c, http.StatusInternalServerError, endpoint, "internal error")
}

func readBody(c *gin.Context, endpoint string) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		reject(c, http.StatusBadRequest, endpoint, "unreadable body")
		return nil, false
	}
	return body, true
}
