package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/ledgerbook/backend/internal/middleware"
	"github.com/ledgerbook/backend/internal/models"
	"github.com/ledgerbook/backend/internal/services"
)

// OutstandingProvider is what the QR handler needs from the summary service.
type OutstandingProvider interface {
	PartyOutstanding(ctx context.Context, userID int, partyID int64) (*models.Party, decimal.Decimal, error)
}

// QRHandler renders a party's outstanding balance as a payment-request QR
// code.
type QRHandler struct {
	summary OutstandingProvider
}

func NewQRHandler(summary OutstandingProvider) *QRHandler {
	return &QRHandler{summary: summary}
}

// PaymentQR returns a PNG QR code encoding a payment request for the party's
// current outstanding balance
// @Summary Payment request QR for a party
// @Tags parties
// @Produce png
// @Success 200 {file} binary
// @Router /parties/{id}/payment-qr [get]
func (h *QRHandler) PaymentQR(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == 0 {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	partyID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid party id", http.StatusBadRequest, nil)
		return
	}

	party, balance, err := h.summary.PartyOutstanding(r.Context(), userID, partyID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrNotFound) {
			status = http.StatusNotFound
		}
		services.SendErrorResponse(w, err.Error(), status, nil)
		return
	}

	payload := fmt.Sprintf("ledgerbook://pay?partyId=%d&name=%s&amount=%s",
		party.ID, url.QueryEscape(party.Name), balance.StringFixed(2))

	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		services.SendErrorResponse(w, "Failed to generate QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}
