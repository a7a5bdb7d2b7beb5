package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/credlend/credit-service/internal/config"
	"github.com/credlend/credit-service/internal/handler"
	"github.com/credlend/credit-service/internal/jobs"
	"github.com/credlend/credit-service/internal/middleware"
	"github.com/credlend/credit-service/internal/repository"
	"github.com/credlend/credit-service/internal/service"
	emailutil "github.com/credlend/credit-service/internal/utils/email"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open(cfg.DBDriver, cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo, err := repository.NewRepository(db)
	if err != nil {
		logger.Fatalf("Failed to initialize repository: %v", err)
	}
	svc := service.NewService(repo, logger, service.Options{ScoreStaleAfter: cfg.ScoreStaleAfter})
	h := handler.NewHandler(svc)
	sender := emailutil.NewSender(cfg, logger)

	// Background sweeps
	runner := jobs.NewRunner(svc, sender, cfg, logger)
	if err := runner.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}
	defer runner.Stop()

	// Setup router
	r := mux.NewRouter()
	api := r.PathPrefix("/").Subrouter()
	api.Use(middleware.AuthMiddleware(cfg))
	api.HandleFunc("/profile", h.GetProfile).Methods("GET")
	api.HandleFunc("/loans", h.ApplyForLoan).Methods("POST")
	api.HandleFunc("/loans/{id:[0-9]+}", h.GetLoan).Methods("GET")
	api.HandleFunc("/loans/{id:[0-9]+}/payments", h.MakePayment).Methods("POST")
	api.HandleFunc("/loans/{id:[0-9]+}/payments/latest", h.LatestPayment).Methods("GET")
	api.HandleFunc("/loans/{id:[0-9]+}/overdue", h.MarkOverdue).Methods("POST")
	api.HandleFunc("/score/recompute", h.RecomputeScore).Methods("POST")
	api.HandleFunc("/stats", h.Stats).Methods("GET")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
