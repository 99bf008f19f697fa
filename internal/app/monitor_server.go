package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"costsim/internal/bench"
	"costsim/internal/book"
	"costsim/internal/monitor"
	"costsim/internal/sim"
)

type serverDeps struct {
	monitor   *monitor.Service
	collector *bench.Collector
	engine    *sim.Engine
	latest    *atomic.Pointer[book.Snapshot]
}

func startMonitorServer(ctx context.Context, deps serverDeps, port int, logger *zap.Logger) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 200
		if qs := q.Get("limit"); qs != "" {
			if v, err := strconv.Atoi(qs); err == nil && v > 0 {
				if v > 1000 {
					v = 1000
				}
				limit = v
			}
		}

		eventType := monitor.EventSimulationResult
		if typ := strings.TrimSpace(q.Get("type")); typ != "" {
			eventType = monitor.EventType(strings.ToLower(typ))
		}

		events, err := deps.monitor.ListEvents(r.Context(), eventType, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, events, logger)
	})

	mux.HandleFunc("/latency", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.collector.Summary(), logger)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(deps.collector.Registry(), promhttp.HandlerOpts{}))

	mux.HandleFunc("/simulate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var request sim.Request
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		snapshot := deps.latest.Load()
		if snapshot == nil {
			http.Error(w, "no order book snapshot yet", http.StatusServiceUnavailable)
			return
		}

		result, err := deps.engine.Simulate(*snapshot, request)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sim.ErrInvalidRequest) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}

		deps.monitor.RecordResult(r.Context(), result)
		writeJSON(w, result, logger)
	})

	mux.HandleFunc("/outcome", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var outcome sim.Outcome
		if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := deps.engine.ReportOutcome(outcome); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		deps.monitor.RecordOutcome(r.Context(), outcome)
		w.WriteHeader(http.StatusNoContent)
	})

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("关闭监控服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("监控服务异常", zap.Error(err))
		}
	}()

	logger.Info("监控接口已启动", zap.String("addr", addr))
	return nil
}

func writeJSON(w http.ResponseWriter, payload interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("写入监控响应失败", zap.Error(err))
	}
}
