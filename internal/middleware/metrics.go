package middleware

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// InitMetrics builds the HTTP metrics middleware. Passing nil registers on the
// default registry so /metrics also exposes the application collectors.
func InitMetrics(serviceName string, reg prometheus.Registerer) *fiberprometheus.FiberPrometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	prom := fiberprometheus.NewWithRegistry(reg, serviceName, "fecstl", "http", nil)
	prom.SetSkipPaths([]string{"/metrics", "/health/live", "/health/ready"})
	return prom
}

// MetricsMiddleware records request counts and latency.
func MetricsMiddleware(prom *fiberprometheus.FiberPrometheus) fiber.Handler {
	return prom.Middleware
}
