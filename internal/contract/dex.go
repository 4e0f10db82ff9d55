package contract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SelectorExactInputSingle is the SwapRouter single-hop swap entrypoint.
var SelectorExactInputSingle = selector("exactInputSingle((address,address,uint24,address,uint256,uint256,uint256,uint160))")

// ExactInputSingleParams holds parameters for SwapRouter.exactInputSingle.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               uint32
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// EncodeExactInputSingle encodes SwapRouter.exactInputSingle(...) call.
// The struct is: (tokenIn, tokenOut, fee, recipient, deadline, amountIn, amountOutMinimum, sqrtPriceLimitX96)
// The struct has all static types, so no offset pointer is needed - fields are encoded directly.
func EncodeExactInputSingle(params ExactInputSingleParams) []byte {
	// Total size: 4 (selector) + 8*32 (8 fields) = 260 bytes
	data := make([]byte, 4+8*32)
	copy(data[:4], SelectorExactInputSingle)

	offset := 4
	// tokenIn
	copy(data[offset+12:offset+32], params.TokenIn.Bytes())
	offset += 32
	// tokenOut
	copy(data[offset+12:offset+32], params.TokenOut.Bytes())
	offset += 32
	// fee
	big.NewInt(int64(params.Fee)).FillBytes(data[offset : offset+32])
	offset += 32
	// recipient
	copy(data[offset+12:offset+32], params.Recipient.Bytes())
	offset += 32
	// deadline
	params.Deadline.FillBytes(data[offset : offset+32])
	offset += 32
	// amountIn
	params.AmountIn.FillBytes(data[offset : offset+32])
	offset += 32
	// amountOutMinimum
	params.AmountOutMinimum.FillBytes(data[offset : offset+32])
	offset += 32
	// sqrtPriceLimitX96
	if params.SqrtPriceLimitX96 != nil {
		params.SqrtPriceLimitX96.FillBytes(data[offset : offset+32])
	}

	return data
}

// SortTokens returns tokens in the correct order (lower address first).
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address) {
	if tokenA.Hex() < tokenB.Hex() {
		return tokenA, tokenB
	}
	return tokenB, tokenA
}
