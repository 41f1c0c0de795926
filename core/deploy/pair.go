package deploy

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Shivam-Patel-G/blended-math/core/contracts"
)

// PairResult is the outcome of deploying the router and the Solidity wrapper.
type PairResult struct {
	Deployer common.Address
	Rust     *Receipt
	Solidity *Receipt
}

// DeployPair deploys the Rust router first and then the Solidity contract
// with the router address as its constructor argument.
func DeployPair(ctx context.Context, d *Deployer, rust, solidity *Artifact) (*PairResult, error) {
	rustReceipt, err := d.DeployArtifact(ctx, rust)
	if err != nil {
		return nil, fmt.Errorf("rust contract: %w", err)
	}

	if solidity.ABI == nil {
		parsed, err := contracts.Blended()
		if err != nil {
			return nil, err
		}
		solidity.ABI = &parsed
	}
	solReceipt, err := d.DeployArtifact(ctx, solidity, rustReceipt.Address)
	if err != nil {
		return nil, fmt.Errorf("solidity contract: %w", err)
	}

	return &PairResult{
		Deployer: d.From(),
		Rust:     rustReceipt,
		Solidity: solReceipt,
	}, nil
}
