// Package audit writes a JSON-lines trail of calculations and deployments.
package audit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Shivam-Patel-G/blended-math/core/contracts"
	"github.com/Shivam-Patel-G/blended-math/core/registry"
	"github.com/Shivam-Patel-G/blended-math/core/rpcclient"
)

// Logger is the audit trail. The zero value is not usable; a nil *Logger
// discards everything.
type Logger struct {
	zl  *zap.Logger
	out zapcore.WriteSyncer
}

// Open writes to audit-YYYY-MM-DD.jsonl under dir, switching files at
// midnight UTC.
func Open(dir, level string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	w := &dailyWriter{dir: dir, now: time.Now}
	if _, err := w.current(); err != nil {
		return nil, err
	}
	return New(w, level)
}

// New writes JSON lines to w.
func New(w io.Writer, level string) (*Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid audit level %q: %w", level, err)
		}
		lvl = parsed
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.CallerKey = zapcore.OmitKey
	encCfg.StacktraceKey = zapcore.OmitKey

	out := zapcore.AddSync(w)
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), out, zap.NewAtomicLevelAt(lvl))
	return &Logger{zl: zap.New(core), out: out}, nil
}

// Calculation records one evaluated function or its failure.
func (l *Logger) Calculation(fn, impl, input string, r *contracts.Result, err error) {
	if l == nil {
		return
	}
	fields := []zap.Field{
		zap.String("event", "calculation"),
		zap.String("function", fn),
		zap.String("implementation", impl),
		zap.String("input", input),
	}
	if err != nil {
		fields = append(fields, zap.String("error", err.Error()))
		var ce *rpcclient.CallError
		if errors.As(err, &ce) {
			fields = append(fields, zap.Stringer("kind", ce.Kind))
		}
		l.zl.Warn("calculation failed", fields...)
		return
	}
	fields = append(fields,
		zap.String("output", r.Formatted),
		zap.String("raw", r.Raw.String()),
		zap.Duration("elapsed", r.Elapsed),
		zap.Bool("mock", r.Mock),
	)
	l.zl.Info("calculation", fields...)
}

// Comparison records a side-by-side run.
func (l *Logger) Comparison(c *contracts.Comparison) {
	if l == nil || c == nil {
		return
	}
	l.zl.Info("comparison",
		zap.String("event", "comparison"),
		zap.String("function", string(c.Function)),
		zap.String("solidity", c.Solidity.Formatted),
		zap.String("rust", c.Rust.Formatted),
		zap.String("difference", c.Difference.String()),
		zap.Float64("relative_error_pct", c.RelativeError()),
	)
}

// Deployment records a deployed contract pair.
func (l *Logger) Deployment(d *registry.Deployment) {
	if l == nil || d == nil {
		return
	}
	l.zl.Info("deployment",
		zap.String("event", "deployment"),
		zap.String("network", d.Network),
		zap.Uint64("chain_id", d.ChainID),
		zap.String("rust", d.RustAddress),
		zap.String("solidity", d.SolidityAddress),
		zap.String("deployer", d.Deployer),
		zap.Time("deployed_at", d.DeployedAt),
	)
}

// Close flushes and releases the output.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	_ = l.zl.Sync()
	if c, ok := l.out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// dailyWriter appends to one file per UTC day.
type dailyWriter struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

func (w *dailyWriter) current() (*os.File, error) {
	day := w.now().UTC().Format("2006-01-02")
	if w.file != nil && day == w.day {
		return w.file, nil
	}
	if w.file != nil {
		w.file.Close()
	}
	path := filepath.Join(w.dir, "audit-"+day+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	w.file, w.day = f, day
	return f, nil
}

func (w *dailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := w.current()
	if err != nil {
		return 0, err
	}
	return f.Write(p)
}

func (w *dailyWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

func (w *dailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
