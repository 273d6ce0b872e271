package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/arloliu/lsprop"
	"go.opentelemetry.io/otel/propagation"
)

var errUsage = errors.New("usage error")

// runEncode prints the carrier entries for a trace and span id.
// Without ids a new root is generated.
func runEncode(args []string, out io.Writer) error {
	cfg := newConfig()
	cfg.applyEnvOverrides()

	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	traceID := fs.String("trace", "", "Trace id")
	spanID := fs.String("span", "", "Parent span id")
	bag := fs.String("baggage", "", "Baggage entries as k=v,k2=v2")
	fs.StringVar(&cfg.TraceHeader, "trace-header", cfg.TraceHeader, "Run-trace header name")
	fs.StringVar(&cfg.BaggageHeader, "baggage-header", cfg.BaggageHeader, "Baggage header name")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	tc := lsprop.TraceContext{TraceID: *traceID, SpanID: *spanID}
	if tc.IsZero() {
		tc = lsprop.NewRoot()
	}

	entries, err := parseBaggage(*bag)
	if err != nil {
		return err
	}
	tc.Baggage = entries

	codec := cfg.codec()
	carrier := propagation.MapCarrier{}
	if err := codec.Inject(tc, carrier); err != nil {
		return err
	}

	for _, key := range []string{codec.TraceHeader(), codec.BaggageHeader()} {
		if value := carrier.Get(key); value != "" {
			_, _ = fmt.Fprintf(out, "%s: %s\n", key, value)
		}
	}

	return nil
}

// runDecode prints the identifiers carried by a trace header value.
func runDecode(args []string, out io.Writer) error {
	cfg := newConfig()
	cfg.applyEnvOverrides()

	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bag := fs.String("baggage", "", "Baggage header value to decode alongside")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: decode takes exactly one header value", errUsage)
	}

	codec := cfg.codec()
	carrier := propagation.MapCarrier{codec.TraceHeader(): fs.Arg(0)}
	if *bag != "" {
		carrier[codec.BaggageHeader()] = *bag
	}

	tc, err := codec.Extract(carrier)
	if err != nil {
		return err
	}
	if tc.IsZero() {
		return fmt.Errorf("%w: empty header value", lsprop.ErrMalformedHeader)
	}

	_, _ = fmt.Fprintf(out, "trace_id: %s\nspan_id: %s\n", tc.TraceID, tc.SpanID)

	keys := make([]string, 0, len(tc.Baggage))
	for k := range tc.Baggage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(out, "baggage.%s: %s\n", k, tc.Baggage[k])
	}

	return nil
}

// parseBaggage parses "k=v,k2=v2". Values may contain '='.
func parseBaggage(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	entries := map[string]string{}
	for part := range strings.SplitSeq(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: entry %q is not k=v", lsprop.ErrInvalidBaggage, part)
		}
		entries[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return entries, nil
}
