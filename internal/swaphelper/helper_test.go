package swaphelper

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type fakeCaller struct {
	t    *testing.T
	from common.Address
}

func (f *fakeCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.from = call.From
	parsed, err := getRouterABI()
	if err != nil {
		f.t.Fatalf("abi parse: %v", err)
	}
	method := parsed.Methods["getAmountsOut"]
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	amountIn := args[0].(*big.Int)
	path := args[1].([]common.Address)

	amounts := make([]*big.Int, len(path))
	amounts[0] = amountIn
	for i := 1; i < len(path); i++ {
		amounts[i] = new(big.Int).Mul(amounts[i-1], big.NewInt(2))
	}
	return method.Outputs.Pack(amounts)
}

func TestHelperAmountsOut(t *testing.T) {
	caller := &fakeCaller{t: t}
	account := common.HexToAddress("0x9999999999999999999999999999999999999999")
	helper, err := newHelper(caller, 137, account)
	if err != nil {
		t.Fatalf("new helper: %v", err)
	}
	if helper.ReadOnly() {
		t.Fatalf("helper with account reported read-only")
	}

	path := []common.Address{
		common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc"),
	}
	amounts, err := helper.AmountsOut(context.Background(), big.NewInt(10), path)
	if err != nil {
		t.Fatalf("amounts out: %v", err)
	}
	if len(amounts) != 3 || amounts[2].Int64() != 40 {
		t.Fatalf("amounts mismatch: %v", amounts)
	}
	if caller.from != account {
		t.Fatalf("call not sent from account: %s", caller.from.Hex())
	}
}

func TestHelperReadOnly(t *testing.T) {
	caller := &fakeCaller{t: t}
	helper, err := newHelper(caller, 137, common.Address{})
	if err != nil {
		t.Fatalf("new helper: %v", err)
	}
	if !helper.ReadOnly() {
		t.Fatalf("helper without account must be read-only")
	}
	if _, err := helper.AmountsOut(context.Background(), big.NewInt(1), nil); err == nil {
		t.Fatalf("expected error for short path")
	}
}

func TestHelperUnsupportedChain(t *testing.T) {
	_, err := newHelper(&fakeCaller{t: t}, 1, common.Address{})
	if !errors.Is(err, ErrUnsupportedChain) {
		t.Fatalf("expected ErrUnsupportedChain, got %v", err)
	}
}
