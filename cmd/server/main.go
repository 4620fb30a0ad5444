package main

import (
	"log"

	_ "whiteboard/docs"
	"whiteboard/internal/config"
	"whiteboard/internal/server"
)

// @title           Whiteboard API
// @version         1.0
// @description     Boards, scenes, sharing and realtime channels for the collaborative whiteboard.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @schemes http
func main() {
	cfg := config.Load()

	s, err := server.Init(cfg)
	if err != nil {
		log.Fatalf("❌ Server initialization failed: %v", err)
	}

	s.Run()
}
