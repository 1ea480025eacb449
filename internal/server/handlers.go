package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"cardflow/internal/database"
	"cardflow/internal/domain"
	"cardflow/internal/gateway"
	"cardflow/internal/service"
)

// Webhook handlers answer 200 even when internal processing fails: anything
// else and the provider keeps retrying. Failures are logged, the poll
// scheduler picks the transaction up on its next sweep.

func (s *Server) handleMomoWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	signature := c.GetHeader("X-Momo-Signature")
	if !gateway.ValidSignature(s.momoWebhookSecret, body, signature) {
		logrus.Warn("momo webhook rejected: bad signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	if err := s.payments.ProcessMomoWebhook(c.Request.Context(), body); err != nil {
		logrus.WithError(err).Error("momo webhook processing failed")
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handlePaylinkWebhook(c *gin.Context) {
	hash := c.GetHeader("Verif-Hash")
	if !gateway.ValidSecret(s.paylinkWebhookHash, hash) {
		logrus.Warn("paylink webhook rejected: bad hash")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid hash"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	if err := s.payments.ProcessPaylinkWebhook(c.Request.Context(), body); err != nil {
		logrus.WithError(err).Error("paylink webhook processing failed")
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createPaymentRequest struct {
	Kind        string          `json:"kind" binding:"required"`
	Provider    string          `json:"provider" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Currency    string          `json:"currency" binding:"required"`
	Email       string          `json:"email"`
	Phone       string          `json:"phone"`
	RedirectURL string          `json:"redirect_url"`
}

func (s *Server) handleCreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	txn, instructions, err := s.payments.CreatePayment(c.Request.Context(), service.CreatePaymentInput{
		Kind:        domain.Kind(req.Kind),
		Provider:    domain.Provider(req.Provider),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Email:       req.Email,
		Phone:       req.Phone,
		RedirectURL: req.RedirectURL,
	})
	if errors.Is(err, service.ErrValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logrus.WithError(err).Error("payment creation failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not initiate payment"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":           txn.ID,
		"reference":    txn.ProviderRef,
		"status":       txn.Status,
		"instructions": instructions,
	})
}

type manualCheckRequest struct {
	Reference     string `json:"reference" binding:"required"`
	PaymentMethod string `json:"payment_method"`
}

func (s *Server) handleManualCheck(c *gin.Context) {
	var req manualCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference is required"})
		return
	}

	status, err := s.payments.ManualCheck(c.Request.Context(), req.Reference)
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	if err != nil {
		logrus.WithError(err).Error("manual check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "check failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (s *Server) handleGetPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	txn, err := s.payments.GetPayment(c.Request.Context(), id)
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        txn.ID,
		"kind":      txn.Kind,
		"provider":  txn.Provider,
		"reference": txn.ProviderRef,
		"amount":    txn.Amount,
		"currency":  txn.Currency,
		"status":    txn.Status,
		"created":   txn.CreatedAt,
		"updated":   txn.UpdatedAt,
	})
}

func (s *Server) handleTokenRefresh(c *gin.Context) {
	if s.tokens == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no token source configured"})
		return
	}
	if _, err := s.tokens.ForceRefresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "refresh failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, database.Health(s.db))
}
