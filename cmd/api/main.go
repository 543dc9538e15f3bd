package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mhm-assoc/memberpass/internal/config"
	"github.com/mhm-assoc/memberpass/internal/credential"
	"github.com/mhm-assoc/memberpass/internal/database"
	"github.com/mhm-assoc/memberpass/internal/handlers"
	"github.com/mhm-assoc/memberpass/internal/issuance"
	"github.com/mhm-assoc/memberpass/internal/models"
	"github.com/mhm-assoc/memberpass/internal/notify"
	"github.com/mhm-assoc/memberpass/internal/storage"
	"github.com/mhm-assoc/memberpass/internal/verification"
	"github.com/mhm-assoc/memberpass/internal/websocket"
)

func main() {
	// 1. Load configuration (fails fast on missing secrets)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize database (detects embedded vs external automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Auto-migrate schema
	log.Println("🚀 Synchronizing database schema...")
	err = db.AutoMigrate(
		&models.UserAuth{},
		&models.Member{},
		&models.Batch{},
		&models.BatchResult{},
		&models.ScanLog{},
	)
	if err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	// 4. Wire the service graph
	signer, err := credential.NewSigner(cfg.CardSecret)
	if err != nil {
		log.Fatalf("Failed to initialize card signer: %v", err)
	}
	encoder := credential.NewEncoder(signer, cfg.Association)
	store := storage.NewCardStore(cfg.Storage)
	dispatcher := notify.New(cfg.SMTP)
	issuer := issuance.NewService(db.DB, encoder, store, dispatcher, cfg.SMTP.Timeout)
	orchestrator := issuance.NewOrchestrator(db.DB, issuer, cfg.Association)
	engine := verification.NewEngine(db.DB, signer)
	ledger := verification.NewLedger(db.DB)

	hub := websocket.NewHub()
	go hub.Run()

	router := handlers.NewRouter(handlers.Deps{
		DB:           db,
		Config:       cfg,
		Encoder:      encoder,
		Store:        store,
		Engine:       engine,
		Ledger:       ledger,
		Issuer:       issuer,
		Orchestrator: orchestrator,
		Hub:          hub,
	})

	// 5. Start server with graceful shutdown
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("🚀 Server starting on port %s\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sig := <-shutdown
	log.Printf("\n⚠️ Received signal: %v. Shutting down gracefully...\n", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Close database (this also stops embedded PostgreSQL)
	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
