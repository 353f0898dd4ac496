package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pharmapos/internal/api"
	"pharmapos/internal/catalog"
	"pharmapos/internal/config"
	"pharmapos/internal/database"
	"pharmapos/internal/migrations"
	"pharmapos/internal/sale"
	salestore "pharmapos/internal/sale/store"
	"pharmapos/internal/seed"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.Connect(cfg.DB.DSN)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	if cfg.Seed.MedicineCSV != "" {
		seed.LoadMedicines(db, cfg.Seed.MedicineCSV)
	}

	var (
		catalogStore = catalog.New(db)
		saleStore    = salestore.New(db)
		coordinator  = sale.NewCoordinator(catalogStore, saleStore)
	)

	handler := api.New(db, catalogStore, coordinator, saleStore, cfg.Auth.Secret)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("pharmacy POS server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
