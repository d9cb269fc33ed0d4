package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"pointplay/internal/config"
	"pointplay/internal/server"
)

func main() {
	cfg := config.Load()

	srv := server.New(cfg)
	srv.RegisterFiberRoutes()

	go func() {
		if err := srv.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("[SERVER] Listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := srv.Shutdown(); err != nil {
		log.Printf("[SERVER] Shutdown error: %v", err)
	}
	log.Println("[SERVER] Stopped")
}
