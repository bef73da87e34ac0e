package middleware

import (
	"sync"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"

	"scribe/internal/observability"
)

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// InitMetrics exposes the default registry at path and instruments every
// request. The collector is process-wide; repeated calls reuse it.
func InitMetrics(app *fiber.App, serviceName, path string) {
	promOnce.Do(func() {
		prom = fiberprometheus.New(serviceName)
	})
	prom.RegisterAt(app, path)
	app.Use(prom.Middleware)
}

// RedisErrors records a failed redis operation.
func RedisErrors(operation string) {
	observability.RedisErrorRate.WithLabelValues(operation).Inc()
}
