package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Shivam-Patel-G/blended-math/config"
)

const (
	ResultFile  = "deployment-result.json"
	SummaryFile = "deployment-summary.json"
)

// Result is the address file other scripts read after a deploy.
type Result struct {
	RustContractAddress     string `json:"rustContractAddress"`
	SolidityContractAddress string `json:"solidityContractAddress"`
}

// ContractSummary describes one deployed contract.
type ContractSummary struct {
	Address     string `json:"address"`
	Description string `json:"description"`
	Explorer    string `json:"explorer"`
}

// Summary is the human-oriented record written next to the result file.
type Summary struct {
	Timestamp time.Time                  `json:"timestamp"`
	Network   config.NetworkConfig       `json:"network"`
	Deployer  string                     `json:"deployer,omitempty"`
	Contracts map[string]ContractSummary `json:"contracts"`
}

// NewSummary builds a summary for d on network.
func NewSummary(d *Deployment, network config.NetworkConfig) *Summary {
	return &Summary{
		Timestamp: d.DeployedAt,
		Network:   network,
		Deployer:  d.Deployer,
		Contracts: map[string]ContractSummary{
			"rust": {
				Address:     d.RustAddress,
				Description: "Mathematical functions using libm library",
				Explorer:    network.ExplorerURL(d.RustAddress),
			},
			"solidity": {
				Address:     d.SolidityAddress,
				Description: "PRB-Math style fixed-point arithmetic + Rust integration",
				Explorer:    network.ExplorerURL(d.SolidityAddress),
			},
		},
	}
}

// WriteResult writes the address pair of d to path.
func WriteResult(path string, d *Deployment) error {
	return writeJSON(path, Result{
		RustContractAddress:     d.RustAddress,
		SolidityContractAddress: d.SolidityAddress,
	})
}

// WriteSummary writes s to path.
func WriteSummary(path string, s *Summary) error {
	return writeJSON(path, s)
}

// ReadResult loads an address file written by WriteResult or the old
// deploy scripts.
func ReadResult(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &r, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
