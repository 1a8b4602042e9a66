package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/alex-user-go/luxsearch/internal/app"
	"github.com/alex-user-go/luxsearch/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("LUX_CONFIG"), "path to YAML config file")
	flag.Parse()

	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.Printf("warning: .env not loaded: %v", err)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}

	if err := app.Run(cfg); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
