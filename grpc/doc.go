// Package grpc carries the LangSmith run-trace header in gRPC metadata.
//
// ServerOptions and DialOptions bundle an otelgrpc stats handler with the
// run-trace interceptors, so a server span continues the caller's run and
// handlers see the resolved TraceContext:
//
//	srv := grpc.NewServer(lsgrpc.ServerOptions(lsgrpc.WithLogger(logger))...)
//
//	conn, err := grpc.NewClient(target,
//	    append(lsgrpc.DialOptions(), grpc.WithTransportCredentials(creds))...)
//
// The interceptors can also be installed on their own. A server interceptor
// never rejects a call: a missing or malformed header starts a new root.
// A client interceptor fails the call when the context carries a
// TraceContext with invalid identifiers.
package grpc
