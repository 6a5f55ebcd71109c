package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer возвращает tracer для компонента.
// Пока провайдер не установлен, spans — no-op.
func Tracer(component string) trace.Tracer {
	return otel.Tracer("github.com/shaiso/Outpost/" + component)
}
