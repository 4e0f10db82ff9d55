// Package broadcast submits pre-signed envelopes through a bounded worker
// pool and classifies every rejection.
package broadcast

import (
	"strings"

	"github.com/gateway-fm/txblast/pkg/types"
)

// rule maps an error-text substring to its classification. Rules are
// evaluated in order against the lowercased error text; the first hit wins,
// so more specific substrings must come before generic ones (notably
// "replacement transaction underpriced" would otherwise be shadowed by a
// bare "underpriced" rule).
type rule struct {
	substring string
	class     types.ErrorClass
}

var classifyRules = []rule{
	{"gas price too low", types.ErrGasPriceTooLow},
	{"max fee per gas less than block base fee", types.ErrGasPriceTooLow},
	{"nonce too low", types.ErrNonceTooLow},
	{"nonce too high", types.ErrNonceTooHigh},
	{"already known", types.ErrAlreadyKnown},
	{"known transaction", types.ErrAlreadyKnown},
	{"replacement transaction underpriced", types.ErrReplacementUnderpriced},
	{"replacement underpriced", types.ErrReplacementUnderpriced},
	{"insufficient funds", types.ErrInsufficientFunds},
	{"intrinsic gas too low", types.ErrGasLimitTooLow},
	{"execution reverted", types.ErrExecutionReverted},
	{"timeout", types.ErrTimeout},
	{"deadline exceeded", types.ErrTimeout},
	{"connection refused", types.ErrConnection},
	{"connection reset", types.ErrConnection},
	{"no such host", types.ErrConnection},
	{"broken pipe", types.ErrConnection},
	{"eof", types.ErrConnection},
}

// Classify maps a broadcast error to its category. Unknown errors fall
// through to ErrOther.
func Classify(err error) types.ErrorClass {
	if err == nil {
		return types.ErrOther
	}
	text := strings.ToLower(err.Error())
	for _, r := range classifyRules {
		if strings.Contains(text, r.substring) {
			return r.class
		}
	}
	return types.ErrOther
}
