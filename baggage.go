package lsprop

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/baggage"
)

// Well-known baggage keys read by the LangSmith backend.
const (
	BaggageProject  = "langsmith-project"
	BaggageMetadata = "langsmith-metadata"
	BaggageTags     = "langsmith-tags"
)

// SetBaggage adds a key-value pair to the run baggage carried by ctx.
//
// Keys and values are any UTF-8 strings and keys must be non-empty. Key bytes
// outside the HTTP token set are percent-encoded on the wire, as are values.
//
// Returns an error wrapping ErrInvalidBaggage if the pair cannot be encoded.
func SetBaggage(ctx context.Context, key, value string) (context.Context, error) {
	if _, err := baggage.NewMemberRaw(key, value); err != nil {
		return ctx, fmt.Errorf("%w: key %q: %w", ErrInvalidBaggage, key, err)
	}

	tc, _ := FromContext(ctx)

	return ContextWith(ctx, tc.WithBaggage(key, value)), nil
}

// MustSetBaggage adds a key-value pair to baggage, panicking on error.
// Use when key/value are known to be valid (e.g., hardcoded keys).
func MustSetBaggage(ctx context.Context, key, value string) context.Context {
	newCtx, err := SetBaggage(ctx, key, value)
	if err != nil {
		panic(fmt.Sprintf("lsprop: invalid baggage key=%q value=%q: %v", key, value, err))
	}

	return newCtx
}

// GetBaggage retrieves a value from the run baggage in the context.
func GetBaggage(ctx context.Context, key string) string {
	tc, _ := FromContext(ctx)
	return tc.Baggage[key]
}

// DeleteBaggage removes a key from the run baggage in the context.
func DeleteBaggage(ctx context.Context, key string) context.Context {
	tc, ok := FromContext(ctx)
	if !ok {
		return ctx
	}

	return ContextWith(ctx, tc.WithoutBaggage(key))
}

// AllBaggage returns a copy of all run baggage entries.
func AllBaggage(ctx context.Context) map[string]string {
	tc, _ := FromContext(ctx)
	result := make(map[string]string, len(tc.Baggage))
	for k, v := range tc.Baggage {
		result[k] = v
	}

	return result
}

// SetProject routes runs started downstream to the named project.
func SetProject(ctx context.Context, project string) (context.Context, error) {
	return SetBaggage(ctx, BaggageProject, project)
}

// SetTags attaches tags to downstream runs. Tags are comma-joined; empty tags are dropped.
func SetTags(ctx context.Context, tags ...string) (context.Context, error) {
	kept := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			kept = append(kept, tag)
		}
	}

	return SetBaggage(ctx, BaggageTags, strings.Join(kept, ","))
}

// Tags returns the tags set by SetTags, or nil.
func Tags(ctx context.Context) []string {
	raw := GetBaggage(ctx, BaggageTags)
	if raw == "" {
		return nil
	}

	return strings.Split(raw, ",")
}

// SetMetadata attaches JSON-encoded metadata to downstream runs.
func SetMetadata(ctx context.Context, metadata map[string]any) (context.Context, error) {
	data, err := sonic.Marshal(metadata)
	if err != nil {
		return ctx, fmt.Errorf("encode metadata: %w", err)
	}

	return SetBaggage(ctx, BaggageMetadata, string(data))
}

// Metadata decodes the metadata set by SetMetadata.
// Returns nil and no error when none is present.
func Metadata(ctx context.Context) (map[string]any, error) {
	raw := GetBaggage(ctx, BaggageMetadata)
	if raw == "" {
		return nil, nil
	}

	var metadata map[string]any
	if err := sonic.UnmarshalString(raw, &metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	return metadata, nil
}
