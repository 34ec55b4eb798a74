// Command server runs the staff desk: the employee and client directories
// as htmx pages and a JSON API.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/simp-lee/staffdesk/internal/app"
	"github.com/simp-lee/staffdesk/internal/config"
)

func main() {
	defaultPath := "configs/config.yaml"
	if p := os.Getenv("APP_CONFIG"); p != "" {
		defaultPath = p
	}
	configPath := flag.String("config", defaultPath, "path to configuration file (env APP_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	if err := a.Run(); err != nil {
		log.Fatalf("run: %v", err)
	}
}
