// Package nats carries the run-trace header through NATS JetStream messages.
//
// Publishers start a producer span and write the run-trace header naming it as
// parent. Consumers resolve the header with the same fallback rule as servers: a
// missing or malformed header starts a new root.
//
// # Publisher Usage
//
//	js, _ := jetstream.New(nc)
//	publisher := lsnats.NewPublisher(js)
//
//	publisher.Publish(ctx, "runs.created", data)
//
// # Callback-Style Consumption
//
//	consumer.Consume(lsnats.MessageHandlerWithTracing(func(msg *lsnats.TracedMsg) {
//	    summarize(msg.Context(), msg.Data())
//	    msg.Ack()
//	}, lsnats.WithStream("RUNS")))
//
// # Settling Consumption
//
// RunHandler acks when the work succeeds and naks it for redelivery otherwise:
//
//	consumer.Consume(lsnats.RunHandler(func(ctx context.Context, msg jetstream.Msg) error {
//	    return store.RecordFeedback(ctx, msg.Data())
//	}))
//
// # Standalone Extraction
//
//	consumer.Consume(func(msg jetstream.Msg) {
//	    tracedMsg := lsnats.NewTracedMsg(msg)
//	    ctx, endSpan := tracedMsg.StartProcessSpan()
//	    defer endSpan(nil)
//	    summarize(ctx, msg.Data())
//	    msg.Ack()
//	})
//
// # Providers
//
// Spans come from the tracer installed with lsprop.InitTracing, or the global
// TracerProvider when none is. WithTracerProvider and WithPropagator pin a
// specific provider and propagator for one publisher or handler.
//
// # Semantic Conventions
//
// Spans follow the OpenTelemetry messaging semantic conventions:
//   - Producer spans use kind PRODUCER with name "publish {subject}"
//   - Process spans use kind CONSUMER with name "process {stream}"
//
// Both record the run trace id as "langsmith.trace_id" and the project from
// the run's baggage as "langsmith.project".
package nats
