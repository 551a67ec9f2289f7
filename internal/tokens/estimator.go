// Package tokens estimates the token cost of prompt text. A loaded
// subword encoder gives exact counts; without one (or when the encoder
// misbehaves) a cheap character-based approximation is used instead.
package tokens

import "log/slog"

// TurnOverhead is the fixed per-turn token cost added on top of the
// content estimate, covering role framing and message separators in the
// wire format.
const TurnOverhead = 5

// Encoder converts text into subword token IDs. Implementations wrap a
// concrete tokenizer model; the estimator treats them as a black box.
type Encoder interface {
	Encode(text string) ([]int, error)
}

// Estimator reports token counts for arbitrary text. The zero value is
// usable and always falls back to the approximation.
type Estimator struct {
	enc    Encoder
	logger *slog.Logger
}

// New creates an Estimator backed by enc. A nil enc is allowed and
// means every estimate uses the fallback approximation.
func New(enc Encoder, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{enc: enc, logger: logger}
}

// Estimate returns the token count of text. It never fails: an encoder
// error or panic degrades to the approximation.
func (e *Estimator) Estimate(text string) (n int) {
	if text == "" {
		return 0
	}
	if e == nil || e.enc == nil {
		return approximate(text)
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("tokenizer panicked, using approximation", "panic", r)
			n = approximate(text)
		}
	}()

	ids, err := e.enc.Encode(text)
	if err != nil {
		e.logger.Debug("tokenizer encode failed, using approximation", "error", err)
		return approximate(text)
	}
	return len(ids)
}

// EstimateTurn returns the token cost of one conversational turn:
// content estimate plus the fixed per-turn overhead.
func (e *Estimator) EstimateTurn(content string) int {
	return e.Estimate(content) + TurnOverhead
}

// approximate is the fallback estimate: one token per four characters,
// rounded up.
func approximate(text string) int {
	return (len(text) + 3) / 4
}
