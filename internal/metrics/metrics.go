// Package metrics exposes Prometheus counters for the snipe pipeline.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// PairsSeen counts every decoded PairCreated event
	PairsSeen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sniper_pairs_seen_total",
		Help: "PairCreated events observed on the factory.",
	})

	// PairsRejected counts filter-chain rejections by filter name
	PairsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sniper_pairs_rejected_total",
		Help: "Pairs rejected before buying, labeled by filter.",
	}, []string{"filter"})

	// BuysTotal counts successfully broadcast entry swaps
	BuysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sniper_buys_total",
		Help: "Entry swaps accepted by at least one endpoint.",
	})

	// SellsTotal counts exit swap attempts by trigger reason
	SellsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sniper_sells_total",
		Help: "Exit swap attempts, labeled by trigger reason.",
	}, []string{"reason"})

	// GateActive is 1 while a position lifecycle holds the trade gate
	GateActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sniper_gate_active",
		Help: "Whether the single-flight trade gate is held.",
	})

	// WSNotifications counts log notifications delivered over the socket
	WSNotifications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sniper_ws_notifications_total",
		Help: "Subscription notifications received over WebSocket.",
	})
)

// Serve exposes /metrics on the given port in a background goroutine
func Serve(port int, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("Metrics endpoint listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Metrics server stopped")
		}
	}()
}
