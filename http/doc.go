// Package http carries the run-trace header over net/http, alongside otelhttp
// instrumentation.
//
// # HTTP Server
//
// Extract the run-trace header on every request:
//
//	mux.Handle("/runs", lshttp.Middleware(lshttp.WithLogger(logger))(runsHandler))
//
//	// With an otelhttp server span around it
//	mux.Handle("/runs", lshttp.Handler(runsHandler, "runs.create"))
//
// Handlers read the result with lsprop.FromContext. A missing or malformed header
// starts a new root; the request is never rejected.
//
// # HTTP Client
//
// Create a client that writes the header for the TraceContext on each request context:
//
//	client := lshttp.NewClient(
//	    lshttp.WithTimeout(30 * time.Second),
//	)
//
//	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
//	resp, err := client.Do(req)
package http
