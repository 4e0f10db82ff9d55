package broadcast

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gateway-fm/txblast/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		errText string
		want    types.ErrorClass
	}{
		{"gas price too low to be included", types.ErrGasPriceTooLow},
		{"max fee per gas less than block base fee", types.ErrGasPriceTooLow},
		{"nonce too low", types.ErrNonceTooLow},
		{"nonce too high", types.ErrNonceTooHigh},
		{"already known", types.ErrAlreadyKnown},
		{"known transaction: 0xabc", types.ErrAlreadyKnown},
		{"replacement transaction underpriced", types.ErrReplacementUnderpriced},
		{"replacement underpriced", types.ErrReplacementUnderpriced},
		{"insufficient funds for gas * price + value", types.ErrInsufficientFunds},
		{"intrinsic gas too low", types.ErrGasLimitTooLow},
		{"execution reverted", types.ErrExecutionReverted},
		{"context deadline exceeded", types.ErrTimeout},
		{"i/o timeout", types.ErrTimeout},
		{"dial tcp: connection refused", types.ErrConnection},
		{"connection reset by peer", types.ErrConnection},
		{"no such host", types.ErrConnection},
		{"write: broken pipe", types.ErrConnection},
		{"unexpected EOF", types.ErrConnection},
		{"something entirely new", types.ErrOther},
	}

	for _, tt := range tests {
		t.Run(tt.errText, func(t *testing.T) {
			if got := Classify(errors.New(tt.errText)); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.errText, got, tt.want)
			}
		})
	}
}

func TestClassifyIsCaseInsensitive(t *testing.T) {
	if got := Classify(errors.New("Nonce Too Low")); got != types.ErrNonceTooLow {
		t.Errorf("Classify() = %q, want %q", got, types.ErrNonceTooLow)
	}
}

func TestClassifyReplacementBeatsWrappedText(t *testing.T) {
	// The specific replacement rule must win even when the message carries
	// other matchable words around it.
	err := fmt.Errorf("send failed: %w", errors.New("replacement transaction underpriced"))
	if got := Classify(err); got != types.ErrReplacementUnderpriced {
		t.Errorf("Classify() = %q, want %q", got, types.ErrReplacementUnderpriced)
	}
}

func TestClassifyNil(t *testing.T) {
	if got := Classify(nil); got != types.ErrOther {
		t.Errorf("Classify(nil) = %q, want %q", got, types.ErrOther)
	}
}
