package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"wayfinder/internal/domain"
	"wayfinder/internal/infra/tracer"
)

// run is the execution pipeline shared by every provider tool: decode args,
// open a span, call handler, encode the result.
//
// handler may return a string (wrapped as {"text": ...}), a json.RawMessage
// (passed through) or any other value (marshalled). Errors are returned as-is
// for the capability server to classify.
func run[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	raw json.RawMessage,
	handler func(ctx context.Context, span trace.Span, p P) (any, error),
) (out json.RawMessage, err error) {
	ctx, span := tracer.StartSpan(ctx, spanName)
	defer func() { tracer.Finish(span, err) }()

	var p P
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: decode arguments: %v", domain.ErrInvalidInput, err)
		}
	}

	result, err := handler(ctx, span, p)
	if err != nil {
		logger.Debug(spanName+" failed", "error", err)
		return nil, err
	}
	return encodeResult(result)
}

func encodeResult(v any) (json.RawMessage, error) {
	switch r := v.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		return r, nil
	case string:
		return json.Marshal(textResult{Text: r})
	default:
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		return data, nil
	}
}

type textResult struct {
	Text string `json:"text"`
}
