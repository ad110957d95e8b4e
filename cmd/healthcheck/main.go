package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirrobot01/pakscan/internal/config"
)

// HealthStatus represents the status of the server endpoints
type HealthStatus struct {
	Server        bool `json:"server"`
	API           bool `json:"api"`
	OverallStatus bool `json:"overall_status"`
}

func main() {
	var (
		configPath string
		debug      bool
	)
	flag.StringVar(&configPath, "config", "", "path to the config folder")
	flag.BoolVar(&debug, "debug", false, "enable debug mode for detailed output")
	flag.Parse()
	config.SetConfigPath(configPath)
	cfg := config.Get()
	port := getEnvOrDefault("PAKSCAN_PORT", cfg.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status := HealthStatus{
		Server: check(ctx, fmt.Sprintf("http://localhost:%s/healthz", port), http.StatusOK),
		// no run yet is still a healthy API
		API: check(ctx, fmt.Sprintf("http://localhost:%s/api/runs/last", port), http.StatusOK, http.StatusNotFound),
	}
	status.OverallStatus = status.Server && status.API

	if debug {
		statusJSON, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(statusJSON))
	}

	if status.OverallStatus {
		os.Exit(0)
	}
	os.Exit(1)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func check(ctx context.Context, url string, accepted ...int) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	for _, code := range accepted {
		if resp.StatusCode == code {
			return true
		}
	}
	return false
}
