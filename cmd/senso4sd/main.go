package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/joshp123/senso4s/internal/ble"
	"github.com/joshp123/senso4s/internal/config"
	"github.com/joshp123/senso4s/internal/core"
	"github.com/joshp123/senso4s/internal/discovery"
	"github.com/joshp123/senso4s/internal/history"
	"github.com/joshp123/senso4s/internal/homeassistant"
	"github.com/joshp123/senso4s/internal/poller"
	"github.com/joshp123/senso4s/internal/server"
)

func main() {
	configPath := flag.String("config", envOrDefault("SENSO4S_CONFIG", config.DefaultPath), "Path of the configuration file.")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	registry, err := core.LoadRegistry(cfg.RegistryPath)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}
	store := core.NewStore()

	adapter, err := ble.NewAdapter(cfg.Adapter)
	if err != nil {
		log.Fatalf("bluetooth: %v", err)
	}
	defer adapter.Close()

	var publishers []poller.Publisher
	var unpublisher server.Unpublisher

	if cfg.MQTT != nil {
		mqttPublisher, err := homeassistant.NewPublisher(*cfg.MQTT)
		if err != nil {
			log.Fatalf("mqtt: %v", err)
		}
		defer mqttPublisher.Close()
		publishers = append(publishers, mqttPublisher)
		unpublisher = mqttPublisher
	}

	if cfg.Influx != nil {
		sink, err := history.NewSink(*cfg.Influx)
		if err != nil {
			log.Fatalf("influx: %v", err)
		}
		defer sink.Close()
		publishers = append(publishers, sink)
	}

	interval := time.Duration(cfg.ScanIntervalSeconds) * time.Second
	devicePoller := poller.New(registry, store, adapter, adapter, interval, publishers...)
	discoverer := discovery.New()
	defer discoverer.Close()
	devicePoller.Observer = discoverer

	metricsRegistry := core.MetricsRegistry(core.NewMetricsCollector(registry, store))

	api := &server.API{
		Registry:    registry,
		Store:       store,
		Discoverer:  discoverer,
		Refresher:   devicePoller,
		Unpublisher: unpublisher,
	}
	httpServer := server.New(cfg.HTTPAddr, api, metricsRegistry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		glog.Infof("http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http serve: %v", err)
		}
	}()

	glog.Infof("polling %d configured device(s) every %s", len(registry.List()), interval)
	if err := devicePoller.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("poller: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
