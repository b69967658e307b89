package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/fetcher"
	"github.com/sells-group/listings-cli/internal/model"
)

// ErrInputUnavailable marks a run that could not read its input at all.
var ErrInputUnavailable = eris.New("pipeline: input missing or corrupt")

// InputError wraps the cause of an unreadable input source.
type InputError struct {
	Source string
	Err    error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("pipeline: input %s missing or corrupt: %v", e.Source, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// Is matches ErrInputUnavailable.
func (e *InputError) Is(target error) bool { return target == ErrInputUnavailable }

// LoadRaw reads a JSON array of scraped records from a local path or URL.
// Array elements that are not objects are skipped. A missing source, or one
// that is not a JSON array, fails with an InputError.
func LoadRaw(ctx context.Context, f fetcher.Fetcher, source string) ([]model.RawListing, error) {
	r, err := fetcher.Open(ctx, f, source)
	if err != nil {
		return nil, &InputError{Source: source, Err: err}
	}
	defer r.Close() //nolint:errcheck

	items, errs := fetcher.DecodeJSONArray[json.RawMessage](ctx, r)

	var (
		out     []model.RawListing
		skipped int
		index   int
	)
	for item := range items {
		i := index
		index++

		trimmed := bytes.TrimSpace(item)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			skipped++
			zap.L().Warn("pipeline: skipping non-object record", zap.Int("index", i))
			continue
		}
		var raw model.RawListing
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			skipped++
			zap.L().Warn("pipeline: skipping unreadable record", zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, raw)
	}
	for err := range errs {
		if err != nil {
			return nil, &InputError{Source: source, Err: err}
		}
	}

	zap.L().Info("pipeline: input loaded",
		zap.String("source", source),
		zap.Int("records", len(out)),
		zap.Int("skipped", skipped),
	)
	return out, nil
}
