package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/payment"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	identityEventUserCreated   = "user.created"
	paymentEventCheckoutClosed = "checkout.session.completed"
	signaturePrefix            = "sha256="
)

// Sign returns the X-Webhook-Signature value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature rejects webhook deliveries whose body does not match the shared-secret HMAC.
// The verified body is put back on the request for the handler.
func verifySignature(secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxWebhookBodyBytes))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse("invalid_payload", "unreadable body"))
			return
		}
		provided := strings.TrimPrefix(strings.TrimSpace(ctx.GetHeader(signatureHeader)), signaturePrefix)
		if !hmac.Equal([]byte(provided), []byte(Sign(secret, body))) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("invalid_signature", "signature mismatch"))
			return
		}
		ctx.Request.Body = io.NopCloser(bytes.NewReader(body))
		ctx.Next()
	}
}

func (handler *httpHandler) handleIdentityWebhook(ctx *gin.Context) {
	var delivery identityWebhook
	if err := ctx.ShouldBindJSON(&delivery); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if delivery.Type != identityEventUserCreated {
		ctx.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	userID, err := ledger.NewUserID(delivery.Data.ID)
	if err != nil {
		handler.respondError(ctx, "identity_webhook", err)
		return
	}
	profile, err := handler.ledger.EnsureProfile(ctx.Request.Context(), userID, delivery.Data.Email)
	if err != nil {
		handler.respondError(ctx, "identity_webhook", err)
		return
	}
	handler.logger.Info("profile provisioned from identity webhook",
		zap.String("user_id", profile.UserID.String()),
		zap.Int64("event_credits", profile.EventCredits.Int64()),
	)
	ctx.JSON(http.StatusOK, gin.H{"status": "provisioned"})
}

func (handler *httpHandler) handlePaymentWebhook(ctx *gin.Context) {
	var delivery paymentWebhook
	if err := ctx.ShouldBindJSON(&delivery); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if delivery.Type != paymentEventCheckoutClosed {
		ctx.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	result, err := handler.payments.Complete(ctx.Request.Context(), payment.Completion{
		UserID:          delivery.Data.UserID,
		CreditsToAdd:    delivery.Data.Credits,
		ProviderEventID: delivery.ID,
		PlanID:          delivery.Data.PlanID,
	})
	if err != nil {
		handler.respondError(ctx, "payment_webhook", err)
		return
	}
	status := "applied"
	if result.AlreadyApplied {
		status = "already_applied"
	}
	ctx.JSON(http.StatusOK, gin.H{"status": status})
}
