// Package frontend rewrites contract addresses and network settings baked
// into the browser app sources after a deploy.
package frontend

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/Shivam-Patel-G/blended-math/config"
)

var ErrInvalidAddress = errors.New("invalid address")

// Addresses is the deployed pair written into the sources.
type Addresses struct {
	Rust     common.Address
	Solidity common.Address
}

// FileReport is the outcome for one file.
type FileReport struct {
	Path    string
	Exists  bool
	Changed bool
	Err     error
}

type constant struct {
	re    *regexp.Regexp
	rust  bool
	stamp bool
}

func assignment(name string) *regexp.Regexp {
	return regexp.MustCompile(`((?:const|let|var)\s+` + name + `\s*=\s*)["'][^"'\n]*["'];(?:[ \t]*// Deployed on [^\n]*)?`)
}

var (
	constants = []constant{
		{re: assignment("CONTRACT_ADDRESS"), stamp: true},
		{re: assignment("SOLIDITY_CONTRACT_ADDRESS"), stamp: true},
		{re: assignment("FLUENT_CONTRACT_ADDRESS"), stamp: true},
		{re: assignment("RUST_CONTRACT_ADDRESS"), rust: true, stamp: true},
		// mock contract object in the React app
		{re: regexp.MustCompile(`(rustContract:\s*async\s*\(\)\s*=>\s*\{\s*return\s*)["'][^"'\n]*["'];`), rust: true},
	}
	networkBlock = regexp.MustCompile(`(?s)const FLUENT_NETWORK\s*=\s*\{.*?\};`)
)

// Patcher updates frontend files in place.
type Patcher struct {
	network config.NetworkConfig
	logger  *logrus.Logger
	now     func() time.Time
}

// NewPatcher creates a patcher that writes network into FLUENT_NETWORK blocks.
func NewPatcher(network config.NetworkConfig, logger *logrus.Logger) *Patcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Patcher{network: network, logger: logger, now: time.Now}
}

// Checksum validates a hex address and returns its EIP-55 form.
func Checksum(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

// PatchContent returns content with every known constant rewritten and
// whether anything changed.
func (p *Patcher) PatchContent(content string, addrs Addresses) (string, bool) {
	stamp := p.now().UTC().Format(time.RFC3339)
	out := content

	for _, c := range constants {
		addr := addrs.Solidity
		if c.rust {
			addr = addrs.Rust
		}
		if addr == (common.Address{}) {
			continue
		}
		re := c.re
		out = re.ReplaceAllStringFunc(out, func(match string) string {
			prefix := re.FindStringSubmatch(match)[1]
			line := prefix + `"` + addr.Hex() + `";`
			if c.stamp {
				line += " // Deployed on " + stamp
			}
			return line
		})
	}

	if p.network.RPCURL != "" {
		out = networkBlock.ReplaceAllLiteralString(out, p.networkLiteral())
	}
	return out, stripStamps(out) != stripStamps(content)
}

var stampRe = regexp.MustCompile(` // Deployed on [^\n]*`)

// stripStamps ignores the deploy timestamps so re-patching with the same
// addresses reports no change.
func stripStamps(s string) string {
	return stampRe.ReplaceAllLiteralString(s, "")
}

func (p *Patcher) networkLiteral() string {
	return fmt.Sprintf("const FLUENT_NETWORK = {\n"+
		"  name: %s,\n"+
		"  chainId: %d,\n"+
		"  rpcUrl: %s,\n"+
		"  blockExplorer: %s\n"+
		"};", jsString(p.network.Name), p.network.ChainID, jsString(p.network.RPCURL), jsString(p.network.BlockExplorer))
}

var jsEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)

// jsString renders s as a single-quoted JavaScript string literal.
func jsString(s string) string {
	return "'" + jsEscaper.Replace(s) + "'"
}

// Patch rewrites each file. Missing files are reported, not treated as errors.
func (p *Patcher) Patch(files []string, addrs Addresses) []FileReport {
	reports := make([]FileReport, 0, len(files))
	for _, path := range files {
		report := p.patchFile(path, addrs)
		entry := p.logger.WithFields(logrus.Fields{
			"file":    path,
			"exists":  report.Exists,
			"changed": report.Changed,
		})
		if report.Err != nil {
			entry.WithError(report.Err).Error("Failed to update frontend file")
		} else {
			entry.Info("Frontend file checked")
		}
		reports = append(reports, report)
	}
	return reports
}

func (p *Patcher) patchFile(path string, addrs Addresses) FileReport {
	report := FileReport{Path: path}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return report
	}
	if err != nil {
		report.Err = err
		return report
	}
	report.Exists = true

	data, err := os.ReadFile(path)
	if err != nil {
		report.Err = fmt.Errorf("failed to read: %w", err)
		return report
	}

	updated, changed := p.PatchContent(string(data), addrs)
	if !changed {
		return report
	}
	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		report.Err = fmt.Errorf("failed to write: %w", err)
		return report
	}
	report.Changed = true
	return report
}

// Updated counts the reports that changed a file.
func Updated(reports []FileReport) int {
	n := 0
	for _, r := range reports {
		if r.Changed {
			n++
		}
	}
	return n
}
