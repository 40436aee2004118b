// Package swaphelper binds the chain-specific router used by swap tooling.
package swaphelper

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ErrUnsupportedChain is returned for chains without a known router.
var ErrUnsupportedChain = errors.New("swap helper not supported on chain")

const routerABIJSON = `[
  {"inputs": [{"internalType": "uint256", "name": "amountIn", "type": "uint256"}, {"internalType": "address[]", "name": "path", "type": "address[]"}], "name": "getAmountsOut", "outputs": [{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "factory", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"}
]`

var (
	routerABI     abi.ABI
	routerABIOnce sync.Once
	routerABIErr  error
)

func getRouterABI() (abi.ABI, error) {
	routerABIOnce.Do(func() {
		routerABI, routerABIErr = abi.JSON(strings.NewReader(routerABIJSON))
	})
	return routerABI, routerABIErr
}

var routers = map[uint64]common.Address{
	137: common.HexToAddress("0xC0788A3aD43d79aa53B09c2EaCc313A787d1d607"),
}

// RouterFor returns the router address for chainID.
func RouterFor(chainID uint64) (common.Address, bool) {
	addr, ok := routers[chainID]
	return addr, ok
}

// Helper is a router binding scoped to one chain and, optionally, one account.
type Helper struct {
	ChainID uint64
	Account common.Address
	Router  common.Address

	contract *bind.BoundContract
}

// New binds the router of chainID on backend. A zero account yields a
// read-only helper.
func New(backend bind.ContractBackend, chainID uint64, account common.Address) (*Helper, error) {
	return newHelper(backend, chainID, account)
}

func newHelper(caller bind.ContractCaller, chainID uint64, account common.Address) (*Helper, error) {
	if caller == nil {
		return nil, fmt.Errorf("backend is nil")
	}
	router, ok := RouterFor(chainID)
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnsupportedChain, chainID)
	}
	parsed, err := getRouterABI()
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}

	var transactor bind.ContractTransactor
	var filterer bind.ContractFilterer
	if backend, ok := caller.(bind.ContractBackend); ok {
		transactor, filterer = backend, backend
	}

	return &Helper{
		ChainID:  chainID,
		Account:  account,
		Router:   router,
		contract: bind.NewBoundContract(router, parsed, caller, transactor, filterer),
	}, nil
}

// ReadOnly reports whether the helper has no connected account.
func (h *Helper) ReadOnly() bool {
	return h.Account == (common.Address{})
}

// AmountsOut quotes amountIn along path through the router.
func (h *Helper) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if h.contract == nil {
		return nil, fmt.Errorf("helper is not bound")
	}
	if len(path) < 2 {
		return nil, fmt.Errorf("path needs at least two tokens")
	}

	var out []interface{}
	if err := h.contract.Call(h.callOpts(ctx), &out, "getAmountsOut", amountIn, path); err != nil {
		return nil, fmt.Errorf("call getAmountsOut: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getAmountsOut return size %d", len(out))
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getAmountsOut unexpected type %T", out[0])
	}
	return amounts, nil
}

func (h *Helper) callOpts(ctx context.Context) *bind.CallOpts {
	opts := &bind.CallOpts{Context: ctx}
	if !h.ReadOnly() {
		opts.From = h.Account
	}
	return opts
}
