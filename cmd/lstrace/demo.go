package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/arloliu/lsprop"
	lsgin "github.com/arloliu/lsprop/gin"
	lshttp "github.com/arloliu/lsprop/http"
	lsresty "github.com/arloliu/lsprop/resty"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// upstreamReply is what the demo upstream reports about the request it received.
type upstreamReply struct {
	TraceID string `json:"traceId"`
	SpanID  string `json:"spanId"`
	Project string `json:"project,omitempty"`
}

// demoCall is the result of one call to the upstream.
type demoCall struct {
	CallerTraceID string
	Upstream      upstreamReply
}

// Matched reports whether the upstream joined the caller's trace.
func (c demoCall) Matched() bool {
	return c.CallerTraceID != "" && c.CallerTraceID == c.Upstream.TraceID
}

// caller performs a GET against url with ctx and returns the response body.
type caller func(ctx context.Context, url string) ([]byte, error)

// newUpstream builds the gin router that stands in for a downstream service.
func newUpstream(logger *zap.Logger, codec lsprop.Codec) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(lsgin.Middleware(lsgin.WithCodec(codec), lsgin.WithLogger(logger), lsgin.WithResponseHeader()))

	router.GET("/v1/echo", func(c *gin.Context) {
		tc := lsgin.TraceContext(c)
		logger.Debug("upstream received run",
			zap.String("trace_id", c.GetString(lsgin.TraceIDKey)),
			zap.String("span_id", c.GetString(lsgin.SpanIDKey)))

		c.JSON(http.StatusOK, upstreamReply{
			TraceID: tc.TraceID,
			SpanID:  tc.SpanID,
			Project: tc.Baggage[lsprop.BaggageProject],
		})
	})

	return router
}

// newCaller returns the instrumented client selected by kind.
func newCaller(kind string, logger *zap.Logger, codec lsprop.Codec) (caller, error) {
	switch kind {
	case "http":
		client := lshttp.NewClient(
			lshttp.WithTimeout(5*time.Second),
			lshttp.WithPropagation(lshttp.WithCodec(codec), lshttp.WithLogger(logger)),
		)

		return func(ctx context.Context, url string) ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("upstream returned %s", resp.Status)
			}

			return io.ReadAll(resp.Body)
		}, nil
	case "resty":
		client := lsresty.NewClient(lsresty.WithCodec(codec), lsresty.WithLogger(logger)).
			SetTimeout(5 * time.Second)

		return func(ctx context.Context, url string) ([]byte, error) {
			resp, err := client.R().SetContext(ctx).Get(url)
			if err != nil {
				return nil, err
			}
			if resp.IsError() {
				return nil, fmt.Errorf("upstream returned %s", resp.Status())
			}

			return resp.Body(), nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown client %q", errUsage, kind)
	}
}

// runDemo serves the upstream on a loopback port and calls it cfg.Count times,
// each call under its own root run.
func runDemo(ctx context.Context, cfg *Config, logger *zap.Logger, out io.Writer) ([]demoCall, error) {
	tp, err := lsprop.NewTracerProvider(ctx, cfg.telemetry())
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracer provider shutdown", zap.Error(err))
		}
	}()
	lsprop.InitTracing(tp.Tracer("lstrace"), lsprop.PrefixNamer{RunType: lsprop.RunTypeChain})

	codec := cfg.codec()
	call, err := newCaller(cfg.Client, logger, codec)
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: newUpstream(logger, codec), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("upstream stopped", zap.Error(err))
		}
	}()
	defer func() { _ = srv.Shutdown(context.WithoutCancel(ctx)) }()

	url := "http://" + ln.Addr().String() + "/v1/echo"
	logger.Info("upstream listening", zap.String("url", url), zap.String("client", cfg.Client))

	calls := make([]demoCall, 0, cfg.Count)
	for i := range cfg.Count {
		if err := ctx.Err(); err != nil {
			return calls, err
		}

		result, err := demoOnce(ctx, cfg.Project, call, url, i)
		if err != nil {
			return calls, fmt.Errorf("call %d: %w", i+1, err)
		}
		calls = append(calls, result)

		_, _ = fmt.Fprintf(out, "call %d/%d: trace=%s upstream=%s parent=%s match=%t\n",
			i+1, cfg.Count, result.CallerTraceID, result.Upstream.TraceID, result.Upstream.SpanID, result.Matched())
	}

	return calls, nil
}

func demoOnce(ctx context.Context, project string, call caller, url string, n int) (demoCall, error) {
	if project != "" {
		var err error
		if ctx, err = lsprop.SetProject(ctx, project); err != nil {
			return demoCall{}, err
		}
	}

	ctx, span := lsprop.StartClient(ctx, "CallUpstream")
	defer span.End()
	lsprop.SetAttributes(ctx, attribute.Int("lstrace.call", n+1))

	body, err := call(ctx, url)
	if err != nil {
		lsprop.RecordError(ctx, err)
		return demoCall{}, err
	}

	var reply upstreamReply
	if err := sonic.Unmarshal(body, &reply); err != nil {
		return demoCall{}, fmt.Errorf("decode upstream reply: %w", err)
	}
	lsprop.SetSuccess(ctx)

	return demoCall{CallerTraceID: lsprop.TraceID(ctx), Upstream: reply}, nil
}
