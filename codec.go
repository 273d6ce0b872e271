package lsprop

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/arloliu/lsprop/internal/tracker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
)

// Delimiter separates the trace and span identifiers in the trace header value.
const Delimiter = "."

// Default carrier keys.
const (
	DefaultTraceHeader   = tracker.DefaultTraceHeader
	DefaultBaggageHeader = tracker.DefaultBaggageHeader
)

// ErrInvalidIdentifier is returned when a trace or span identifier is empty,
// contains the delimiter, or has surrounding whitespace.
var ErrInvalidIdentifier = errors.New("lsprop: invalid identifier")

// ErrMalformedHeader is returned when an inbound trace header cannot be parsed.
var ErrMalformedHeader = errors.New("lsprop: malformed trace header")

// ErrInvalidBaggage is returned when a baggage entry cannot be encoded.
var ErrInvalidBaggage = errors.New("lsprop: invalid baggage")

// Encode joins a trace identifier and a parent span identifier into a trace header value.
//
// Example:
//
//	v, err := lsprop.Encode("4bf92f3577b34da6a3ce929d0e0e4736", "00f067aa0ba902b7")
//	// v == "4bf92f3577b34da6a3ce929d0e0e4736.00f067aa0ba902b7"
func Encode(traceID, spanID string) (string, error) {
	if err := validateID("trace id", traceID); err != nil {
		return "", err
	}
	if err := validateID("span id", spanID); err != nil {
		return "", err
	}

	return traceID + Delimiter + spanID, nil
}

// Decode splits a trace header value into its trace and span identifiers.
// Whitespace around the value is ignored; the value must then split into
// exactly two parts that Encode would accept.
func Decode(value string) (traceID, spanID string, err error) {
	value = strings.TrimSpace(value)
	parts := strings.Split(value, Delimiter)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q: expected 2 parts, got %d", ErrMalformedHeader, value, len(parts))
	}
	for _, part := range parts {
		if part == "" {
			return "", "", fmt.Errorf("%w: %q: empty identifier", ErrMalformedHeader, value)
		}
		if strings.TrimSpace(part) != part {
			return "", "", fmt.Errorf("%w: %q: whitespace around identifier", ErrMalformedHeader, value)
		}
	}

	return parts[0], parts[1], nil
}

func validateID(field, id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: %s is empty", ErrInvalidIdentifier, field)
	case strings.Contains(id, Delimiter):
		return fmt.Errorf("%w: %s %q contains %q", ErrInvalidIdentifier, field, id, Delimiter)
	case strings.TrimSpace(id) != id:
		return fmt.Errorf("%w: %s %q has surrounding whitespace", ErrInvalidIdentifier, field, id)
	}

	return nil
}

// Codec writes and reads a TraceContext on a carrier using configurable header names.
// The zero value is not usable; create one with NewCodec.
type Codec struct {
	traceHeader   string
	baggageHeader string
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithTraceHeader sets the carrier key for the trace header. Empty keeps the default.
func WithTraceHeader(name string) CodecOption {
	return func(c *Codec) {
		if name != "" {
			c.traceHeader = name
		}
	}
}

// WithBaggageHeader sets the carrier key for the baggage header. Empty keeps the default.
func WithBaggageHeader(name string) CodecOption {
	return func(c *Codec) {
		if name != "" {
			c.baggageHeader = name
		}
	}
}

// NewCodec creates a Codec using the default header names unless overridden.
func NewCodec(opts ...CodecOption) Codec {
	c := Codec{
		traceHeader:   DefaultTraceHeader,
		baggageHeader: DefaultBaggageHeader,
	}
	for _, opt := range opts {
		opt(&c)
	}

	return c
}

// DefaultCodec returns a Codec bound to the globally configured header names.
func DefaultCodec() Codec {
	s := tracker.Load()

	return NewCodec(WithTraceHeader(s.TraceHeader), WithBaggageHeader(s.BaggageHeader))
}

// SetDefaultCodec makes c the codec used by the package-level Inject and Extract.
func SetDefaultCodec(c Codec) {
	tracker.SetHeaders(c.traceHeader, c.baggageHeader)
}

// TraceHeader returns the carrier key used for the trace header.
func (c Codec) TraceHeader() string { return c.traceHeader }

// BaggageHeader returns the carrier key used for the baggage header.
func (c Codec) BaggageHeader() string { return c.baggageHeader }

// Inject writes tc into the carrier, replacing any existing values for the same keys.
// A baggage header left on the carrier is blanked when tc has no baggage.
// Nothing is written when tc has invalid identifiers or unencodable baggage.
func (c Codec) Inject(tc TraceContext, carrier propagation.TextMapCarrier) error {
	value, err := Encode(tc.TraceID, tc.SpanID)
	if err != nil {
		return err
	}

	var bag string
	if len(tc.Baggage) > 0 {
		bag, err = encodeBaggage(tc.Baggage)
		if err != nil {
			return err
		}
	}

	carrier.Set(c.traceHeader, value)
	if bag != "" || carrier.Get(c.baggageHeader) != "" {
		carrier.Set(c.baggageHeader, bag)
	}

	return nil
}

// Extract reads a TraceContext from the carrier.
//
// A carrier without the trace header yields the zero TraceContext and a nil error,
// so callers can start a new root. A malformed trace header returns ErrMalformedHeader.
// An unparsable baggage header is reported through otel.Handle and dropped.
func (c Codec) Extract(carrier propagation.TextMapCarrier) (TraceContext, error) {
	value := strings.TrimSpace(carrier.Get(c.traceHeader))
	if value == "" {
		return TraceContext{}, nil
	}

	traceID, spanID, err := Decode(value)
	if err != nil {
		return TraceContext{}, err
	}

	tc := TraceContext{TraceID: traceID, SpanID: spanID}
	if raw := carrier.Get(c.baggageHeader); raw != "" {
		entries, err := decodeBaggage(raw)
		if err != nil {
			otel.Handle(err)
		} else {
			tc.Baggage = entries
		}
	}

	return tc, nil
}

// Inject writes tc into the carrier using the default codec.
func Inject(tc TraceContext, carrier propagation.TextMapCarrier) error {
	return DefaultCodec().Inject(tc, carrier)
}

// Extract reads a TraceContext from the carrier using the default codec.
func Extract(carrier propagation.TextMapCarrier) (TraceContext, error) {
	return DefaultCodec().Extract(carrier)
}

func encodeBaggage(entries map[string]string) (string, error) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	members := make([]baggage.Member, 0, len(keys))
	for _, k := range keys {
		m, err := baggage.NewMemberRaw(escapeKey(k), entries[k])
		if err != nil {
			return "", fmt.Errorf("%w: key %q: %w", ErrInvalidBaggage, k, err)
		}
		members = append(members, m)
	}

	bag, err := baggage.New(members...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidBaggage, err)
	}

	return bag.String(), nil
}

func decodeBaggage(raw string) (map[string]string, error) {
	bag, err := baggage.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse header: %w", ErrInvalidBaggage, err)
	}

	members := bag.Members()
	if len(members) == 0 {
		return nil, nil
	}

	entries := make(map[string]string, len(members))
	for _, m := range members {
		entries[unescapeKey(m.Key())] = m.Value()
	}

	return entries, nil
}

// escapeKey percent-encodes the bytes of key that are not HTTP token
// characters, and '%' itself, so any key survives the W3C baggage format.
func escapeKey(key string) string {
	n := 0
	for i := range len(key) {
		if !isKeyByte(key[i]) {
			n++
		}
	}
	if n == 0 {
		return key
	}

	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(key) + 2*n)
	for i := range len(key) {
		c := key[i]
		if isKeyByte(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}

	return b.String()
}

// unescapeKey reverses escapeKey. Keys from other writers that are not valid
// escapes are kept as sent.
func unescapeKey(key string) string {
	if !strings.Contains(key, "%") {
		return key
	}
	decoded, err := url.PathUnescape(key)
	if err != nil {
		return key
	}

	return decoded
}

// isKeyByte reports whether c is an RFC 7230 token character other than '%'.
func isKeyByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}

	return strings.IndexByte("!#$&'*+-.^_`|~", c) >= 0
}
