package contract

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestSelectors(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"transfer", SelectorTransfer, common.FromHex("0xa9059cbb")},
		{"approve", SelectorApprove, common.FromHex("0x095ea7b3")},
		{"balanceOf", SelectorBalanceOf, common.FromHex("0x70a08231")},
		{"exactInputSingle", SelectorExactInputSingle, common.FromHex("0x414bf389")},
	}
	for _, tt := range tests {
		if !bytes.Equal(tt.got, tt.want) {
			t.Errorf("%s selector = %x, want %x", tt.name, tt.got, tt.want)
		}
	}
}

func TestEncodeTransfer(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	data := EncodeTransfer(to, big.NewInt(1000))

	if len(data) != 4+32+32 {
		t.Fatalf("calldata length = %d, want 68", len(data))
	}
	if !bytes.Equal(data[:4], SelectorTransfer) {
		t.Errorf("selector = %x", data[:4])
	}
	if !bytes.Equal(data[16:36], to.Bytes()) {
		t.Errorf("recipient word = %x", data[4:36])
	}
	if got := new(big.Int).SetBytes(data[36:68]); got.Int64() != 1000 {
		t.Errorf("amount word = %s, want 1000", got)
	}
	// Address is left-padded to 32 bytes
	for _, b := range data[4:16] {
		if b != 0 {
			t.Fatal("recipient word not left-padded with zeros")
		}
	}
}

func TestEncodeApprove(t *testing.T) {
	spender := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	data := EncodeApprove(spender, MaxUint256)

	if len(data) != 68 {
		t.Fatalf("calldata length = %d, want 68", len(data))
	}
	if !bytes.Equal(data[:4], SelectorApprove) {
		t.Errorf("selector = %x", data[:4])
	}
	// Max approval is all ones
	for _, b := range data[36:68] {
		if b != 0xff {
			t.Fatal("max approval amount not all ones")
		}
	}
}

func TestEncodeBalanceOf(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	data := EncodeBalanceOf(account)

	if len(data) != 4+32 {
		t.Fatalf("calldata length = %d, want 36", len(data))
	}
	if !bytes.Equal(data[:4], SelectorBalanceOf) {
		t.Errorf("selector = %x", data[:4])
	}
	if !bytes.Equal(data[16:36], account.Bytes()) {
		t.Errorf("account word = %x", data[4:36])
	}
}

func TestEncodeExactInputSingle(t *testing.T) {
	params := ExactInputSingleParams{
		TokenIn:           common.HexToAddress("0x0000000000000000000000000000000000000001"),
		TokenOut:          common.HexToAddress("0x0000000000000000000000000000000000000002"),
		Fee:               3000,
		Recipient:         common.HexToAddress("0x0000000000000000000000000000000000000003"),
		Deadline:          big.NewInt(1700000000),
		AmountIn:          big.NewInt(500),
		AmountOutMinimum:  big.NewInt(0),
		SqrtPriceLimitX96: nil,
	}
	data := EncodeExactInputSingle(params)

	if len(data) != 4+8*32 {
		t.Fatalf("calldata length = %d, want 260", len(data))
	}
	if !bytes.Equal(data[:4], SelectorExactInputSingle) {
		t.Errorf("selector = %x", data[:4])
	}

	word := func(i int) *big.Int {
		start := 4 + i*32
		return new(big.Int).SetBytes(data[start : start+32])
	}
	if word(0).Int64() != 1 || word(1).Int64() != 2 {
		t.Errorf("token words = %s/%s", word(0), word(1))
	}
	if word(2).Int64() != 3000 {
		t.Errorf("fee word = %s, want 3000", word(2))
	}
	if word(4).Int64() != 1700000000 {
		t.Errorf("deadline word = %s", word(4))
	}
	if word(5).Int64() != 500 {
		t.Errorf("amountIn word = %s, want 500", word(5))
	}
	if word(7).Sign() != 0 {
		t.Errorf("nil price limit encoded as %s, want 0", word(7))
	}
}

func TestSortTokens(t *testing.T) {
	a := common.HexToAddress("0x1000000000000000000000000000000000000000")
	b := common.HexToAddress("0x2000000000000000000000000000000000000000")

	first, second := SortTokens(a, b)
	if first != a || second != b {
		t.Error("already-ordered pair was reordered")
	}
	first, second = SortTokens(b, a)
	if first != a || second != b {
		t.Error("reversed pair not reordered")
	}
}

func TestMaxUint256(t *testing.T) {
	if MaxUint256.BitLen() != 256 {
		t.Errorf("BitLen = %d, want 256", MaxUint256.BitLen())
	}
	plusOne := new(big.Int).Add(MaxUint256, big.NewInt(1))
	if plusOne.BitLen() != 257 {
		t.Errorf("MaxUint256 + 1 BitLen = %d, want 257", plusOne.BitLen())
	}
}

func TestERC20BytecodeContainsSelectors(t *testing.T) {
	if len(ERC20Bytecode) == 0 {
		t.Fatal("empty deploy bytecode")
	}
	// The dispatcher embeds each selector as a PUSH4 operand
	for _, sel := range [][]byte{SelectorTransfer, SelectorApprove, SelectorBalanceOf} {
		if !bytes.Contains(ERC20Bytecode, sel) {
			t.Errorf("bytecode missing selector %x", sel)
		}
	}
}
