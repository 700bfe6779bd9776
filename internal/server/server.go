// Package server exposes the daemon's HTTP surface: the setup-flow
// API used by senso4s-cli, health, and Prometheus metrics.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New builds the HTTP server around the API handlers.
func New(addr string, api *API, registry *prometheus.Registry) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/discovery", api.discover)
		v1.GET("/devices", api.listDevices)
		v1.POST("/devices", api.adoptDevice)
		v1.GET("/devices/:address", api.getDevice)
		v1.DELETE("/devices/:address", api.removeDevice)
		v1.GET("/devices/:address/entities", api.deviceEntities)
		v1.GET("/devices/:address/history", api.deviceHistory)
	}

	return &http.Server{Addr: addr, Handler: router}
}
