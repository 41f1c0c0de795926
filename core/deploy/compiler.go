package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrCompilerNotFound = errors.New("solc not found")
	ErrContractNotFound = errors.New("contract not found in compiler output")
	ErrUnknownArtifact  = errors.New("unsupported artifact type")
)

// Artifact is deployable bytecode plus its interface, when known.
type Artifact struct {
	Name     string
	ABI      *abi.ABI
	ABIJSON  string
	Bytecode []byte
}

// Compiler shells out to solc and reads its combined JSON output.
type Compiler struct {
	Path     string
	Optimize bool
	Runs     int
}

// NewCompiler uses the solc on PATH unless SOLC is set.
func NewCompiler() *Compiler {
	path := os.Getenv("SOLC")
	if path == "" {
		path = "solc"
	}
	return &Compiler{Path: path, Optimize: true, Runs: 200}
}

// Compile builds the given sources and returns every contract keyed by its
// bare name.
func (c *Compiler) Compile(ctx context.Context, sources ...string) (map[string]*Artifact, error) {
	bin, err := exec.LookPath(c.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompilerNotFound, err)
	}

	args := []string{"--combined-json", "abi,bin"}
	if c.Optimize {
		args = append(args, "--optimize", "--optimize-runs", fmt.Sprint(c.Runs))
	}
	args = append(args, sources...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("solc compilation failed: %w, output: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseCombinedJSON(stdout.Bytes())
}

// CompileContract compiles sources and picks a single contract by name.
func (c *Compiler) CompileContract(ctx context.Context, name string, sources ...string) (*Artifact, error) {
	artifacts, err := c.Compile(ctx, sources...)
	if err != nil {
		return nil, err
	}
	a, ok := artifacts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContractNotFound, name)
	}
	return a, nil
}

type combinedOutput struct {
	Contracts map[string]struct {
		ABI json.RawMessage `json:"abi"`
		Bin string          `json:"bin"`
	} `json:"contracts"`
	Version string `json:"version"`
}

func parseCombinedJSON(data []byte) (map[string]*Artifact, error) {
	var out combinedOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode solc output: %w", err)
	}

	artifacts := make(map[string]*Artifact, len(out.Contracts))
	for key, contract := range out.Contracts {
		name := key
		if i := strings.LastIndex(key, ":"); i >= 0 {
			name = key[i+1:]
		}

		// solc before 0.8.10 emits the ABI as a JSON string.
		abiJSON := string(contract.ABI)
		var s string
		if json.Unmarshal(contract.ABI, &s) == nil {
			abiJSON = s
		}
		parsed, err := abi.JSON(strings.NewReader(abiJSON))
		if err != nil {
			return nil, fmt.Errorf("failed to parse ABI of %s: %w", name, err)
		}

		artifacts[name] = &Artifact{
			Name:     name,
			ABI:      &parsed,
			ABIJSON:  abiJSON,
			Bytecode: common.FromHex(contract.Bin),
		}
	}
	return artifacts, nil
}

// LoadArtifact reads raw WASM (.wasm) or hex-encoded EVM bytecode
// (.bin, .hex).
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wasm":
		if len(data) == 0 {
			return nil, fmt.Errorf("empty artifact %s", path)
		}
		return &Artifact{Name: name, Bytecode: data}, nil
	case ".bin", ".hex":
		text := strings.TrimSpace(string(data))
		if !strings.HasPrefix(text, "0x") {
			text = "0x" + text
		}
		code, err := hexutil.Decode(text)
		if err != nil {
			return nil, fmt.Errorf("invalid bytecode in %s: %w", path, err)
		}
		return &Artifact{Name: name, Bytecode: code}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownArtifact, path)
}
