package model

// Network describes the chain an RPC endpoint is connected to.
type Network struct {
	ChainID uint64 `json:"chain_id"`
	Name    string `json:"name"`
}

var networkNames = map[uint64]string{
	1:     "mainnet",
	10:    "optimism",
	56:    "bsc",
	137:   "matic",
	1101:  "polygon-zkevm",
	8453:  "base",
	42161: "arbitrum",
	80001: "mumbai",
}

// NetworkFor returns the Network for a chain id, naming it when known.
func NetworkFor(chainID uint64) Network {
	name, ok := networkNames[chainID]
	if !ok {
		name = "unknown"
	}
	return Network{ChainID: chainID, Name: name}
}
