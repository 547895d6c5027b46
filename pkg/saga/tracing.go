package saga

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const sagaTracerName = "actiond.saga"

const (
	spanSagaTask     = "saga.task"
	spanSagaDispatch = "saga.dispatch"
)

func sagaTracer() trace.Tracer {
	return otel.Tracer(sagaTracerName)
}
