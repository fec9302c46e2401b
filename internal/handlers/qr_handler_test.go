package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/ledgerbook/backend/internal/middleware"
	"github.com/ledgerbook/backend/internal/models"
	"github.com/ledgerbook/backend/internal/services"
)

type stubOutstanding struct {
	party   *models.Party
	balance decimal.Decimal
	err     error
}

func (s *stubOutstanding) PartyOutstanding(ctx context.Context, userID int, partyID int64) (*models.Party, decimal.Decimal, error) {
	return s.party, s.balance, s.err
}

func newQRTestRouter(stub *stubOutstanding) http.Handler {
	r := chi.NewRouter()
	r.Get("/parties/{id}/payment-qr", NewQRHandler(stub).PaymentQR)
	return r
}

func qrRequest(target string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	return r.WithContext(middleware.WithUserID(r.Context(), 1))
}

func TestQRHandler_PaymentQR(t *testing.T) {
	t.Run("renders a png", func(t *testing.T) {
		stub := &stubOutstanding{
			party:   &models.Party{ID: 7, Name: "Ravi Traders"},
			balance: decimal.NewFromInt(120),
		}

		w := httptest.NewRecorder()
		newQRTestRouter(stub).ServeHTTP(w, qrRequest("/parties/7/payment-qr"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.NotEmpty(t, w.Body.Bytes())
	})

	t.Run("unknown party is not found", func(t *testing.T) {
		stub := &stubOutstanding{err: fmt.Errorf("%w: party 7", services.ErrNotFound)}

		w := httptest.NewRecorder()
		newQRTestRouter(stub).ServeHTTP(w, qrRequest("/parties/7/payment-qr"))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid id is a bad request", func(t *testing.T) {
		w := httptest.NewRecorder()
		newQRTestRouter(&stubOutstanding{}).ServeHTTP(w, qrRequest("/parties/abc/payment-qr"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing user is unauthorized", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/parties/7/payment-qr", nil)
		w := httptest.NewRecorder()
		newQRTestRouter(&stubOutstanding{}).ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
