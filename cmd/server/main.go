package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/ledgerbook/backend/internal/config"
	"github.com/ledgerbook/backend/internal/database"
	"github.com/ledgerbook/backend/internal/handlers"
	mW "github.com/ledgerbook/backend/internal/middleware"
	"github.com/ledgerbook/backend/internal/services"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	config.Load()

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	authService := services.NewAuthService(db, redisClient)
	partyService := services.NewPartyService(db, redisClient)
	ledgerService := services.NewLedgerService(db, redisClient)
	summaryService := services.NewSummaryService(db, redisClient, ledgerService)
	expenseService := services.NewExpenseService(db)
	incomeService := services.NewIncomeService(db)
	qrHandler := handlers.NewQRHandler(summaryService)

	mW.InitAuthMiddleware(redisClient)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		services.SendJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/parties", partyService.ListParties)
			r.Post("/parties", partyService.CreateParty)
			r.Get("/parties/search", partyService.SearchParties)
			r.Get("/parties/{id}", partyService.GetParty)
			r.Put("/parties/{id}", partyService.UpdateParty)
			r.Delete("/parties/{id}", partyService.DeleteParty)
			r.Get("/parties/{id}/payment-qr", qrHandler.PaymentQR)

			r.Post("/ledger/entries", ledgerService.CreateEntry)
			r.Get("/ledger/entries/{id}", ledgerService.GetEntry)
			r.Put("/ledger/entries/{id}", ledgerService.UpdateEntry)
			r.Delete("/ledger/entries/{id}", ledgerService.DeleteEntry)
			r.Get("/ledger/parties/{partyId}/entries", ledgerService.GetPartyEntries)
			r.Get("/ledger/parties/{partyId}/entries/date-range", ledgerService.GetPartyEntriesDateRange)
			r.Get("/ledger/parties/{partyId}/summary", summaryService.GetPartySummary)
			r.Get("/ledger/parties/{partyId}/outstanding", summaryService.GetPartyOutstanding)

			r.Get("/expenses", expenseService.ListExpenses)
			r.Post("/expenses", expenseService.CreateExpense)
			r.Get("/expenses/{id}", expenseService.GetExpense)
			r.Put("/expenses/{id}", expenseService.UpdateExpense)
			r.Delete("/expenses/{id}", expenseService.DeleteExpense)

			r.Get("/income", incomeService.ListIncome)
			r.Post("/income", incomeService.CreateIncome)
			r.Get("/income/{id}", incomeService.GetIncome)
			r.Put("/income/{id}", incomeService.UpdateIncome)
			r.Delete("/income/{id}", incomeService.DeleteIncome)
		})
	})

	port := viper.GetString("server.port")

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
