/*
Copyright 2026 Caravel Rentals Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/caravel-rentals/caravel/config"
	"github.com/caravel-rentals/caravel/internal/apierror"
	"github.com/caravel-rentals/caravel/model"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Webhook-Signature"

// ReceivePaymentWebhook ingests a payment provider event. The handler only
// verifies the signature and stores the event durably; processing happens in
// the retry engine, so the provider gets its 200 without waiting on us.
func (a Api) ReceivePaymentWebhook(c *gin.Context) {
	conf, err := config.Fetch()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	a.receiveWebhook(c, model.WebhookTypePayment, conf.Payment.WebhookSecret)
}

// ReceiveContractWebhook ingests a contract provider event.
func (a Api) ReceiveContractWebhook(c *gin.Context) {
	conf, err := config.Fetch()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	a.receiveWebhook(c, model.WebhookTypeContract, conf.Contract.WebhookSecret)
}

func (a Api) receiveWebhook(c *gin.Context, webhookType, secret string) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return
	}

	if !verifySignature(body, c.GetHeader(signatureHeader), secret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
		return
	}

	var envelope struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.EventID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be JSON with an event_id"})
		return
	}

	record, created, err := a.caravel.RecordIncomingEvent(c.Request.Context(), webhookType, envelope.EventID, body)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	status := "accepted"
	if !created {
		status = "duplicate"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "record_id": record.RecordID})
}

// verifySignature checks the hex-encoded HMAC-SHA256 of the raw body against
// the provider's shared secret. An unset secret disables verification, which
// only makes sense in local development.
func verifySignature(body []byte, signature, secret string) bool {
	if secret == "" {
		return true
	}
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
