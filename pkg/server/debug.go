package server

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/sirrobot01/pakscan/internal/request"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := map[string]any{
		// Memory stats
		"heap_alloc_mb":  fmt.Sprintf("%.2fMB", float64(memStats.HeapAlloc)/1024/1024),
		"total_alloc_mb": fmt.Sprintf("%.2fMB", float64(memStats.TotalAlloc)/1024/1024),
		"memory_used":    fmt.Sprintf("%.2fMB", float64(memStats.Sys)/1024/1024),

		"gc_cycles":  memStats.NumGC,
		"goroutines": runtime.NumGoroutine(),
		"num_cpu":    runtime.NumCPU(),

		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"go_version": runtime.Version(),
	}

	request.JSONResponse(w, stats, http.StatusOK)
}
