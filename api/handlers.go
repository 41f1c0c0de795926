package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/Shivam-Patel-G/blended-math/core/contracts"
	"github.com/Shivam-Patel-G/blended-math/core/fixedpoint"
	"github.com/Shivam-Patel-G/blended-math/core/mathlib"
	"github.com/Shivam-Patel-G/blended-math/core/rpcclient"
)

const (
	msgBusy        = "A calculation is already in progress"
	msgRateLimited = "Too many requests, slow down"
)

type calculateRequest struct {
	Function       string          `json:"function"`
	Input          json.RawMessage `json:"input"`
	Implementation string          `json:"implementation"`
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   false,
		"error":     message,
		"timestamp": time.Now(),
	})
}

func (s *Server) sendSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   true,
		"data":      data,
		"timestamp": time.Now(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "healthy",
		"network": s.opts.Network.Name,
	}
	if s.opts.Monitor != nil {
		status["connection"] = s.opts.Monitor.Status()
	}
	s.sendSuccess(w, status)
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, s.opts.Network)
}

func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	entry := func(addr string) map[string]string {
		return map[string]string{
			"address":  addr,
			"explorer": s.opts.Network.ExplorerURL(addr),
		}
	}
	s.sendSuccess(w, map[string]interface{}{
		"rust":     entry(s.opts.Contracts.Rust),
		"solidity": entry(s.opts.Contracts.Solidity),
	})
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, s.opts.History.Snapshot())
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	fn, err := mathlib.ParseFunction(req.Function)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	impl, err := contracts.ParseImplementation(req.Implementation)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	x, err := parseInput(req.Input, fn.ParseInput)
	if err != nil {
		s.sendError(w, "Please enter a valid number", http.StatusBadRequest)
		return
	}

	release, ok := s.admit(w, r)
	if !ok {
		return
	}
	defer release()

	ctx, cancel := s.callContext(r.Context())
	defer cancel()

	result, err := s.opts.Calculator.Calculate(ctx, fn, impl, x)
	s.record(fn, impl, x, result, err)
	if err != nil {
		s.sendCalcError(w, err)
		return
	}
	s.sendSuccess(w, result)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	var fn mathlib.Function
	parse := fixedpoint.Parse
	if req.Function != "" {
		var err error
		if fn, err = mathlib.ParseFunction(req.Function); err != nil {
			s.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		parse = fn.ParseInput
	}

	x := contracts.DefaultTestInput
	if len(req.Input) > 0 {
		var err error
		if x, err = parseInput(req.Input, parse); err != nil {
			s.sendError(w, "Please enter a valid number", http.StatusBadRequest)
			return
		}
	}

	release, ok := s.admit(w, r)
	if !ok {
		return
	}
	defer release()

	ctx, cancel := s.callContext(r.Context())
	defer cancel()

	if fn == "" {
		results, err := contracts.ComprehensiveTest(ctx, s.opts.Calculator, x)
		if err != nil {
			s.sendCalcError(w, err)
			return
		}
		for _, c := range results {
			s.recordComparison(c)
		}
		s.sendSuccess(w, results)
		return
	}

	cmp, err := contracts.Compare(ctx, s.opts.Calculator, fn, x)
	if err != nil {
		s.record(fn, "", x, nil, err)
		s.sendCalcError(w, err)
		return
	}
	s.recordComparison(cmp)
	s.sendSuccess(w, cmp)
}

// admit applies the rate limit and the per-client in-flight guard. The
// caller must invoke release when ok.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) (release func(), ok bool) {
	id := clientID(r)
	if !s.limiter.Allow(id) {
		s.sendError(w, msgRateLimited, http.StatusTooManyRequests)
		return nil, false
	}
	if !s.limiter.Acquire(id) {
		s.sendError(w, msgBusy, http.StatusConflict)
		return nil, false
	}
	return func() { s.limiter.Release(id) }, true
}

func (s *Server) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.opts.CallTimeout > 0 {
		return context.WithTimeout(parent, s.opts.CallTimeout)
	}
	return context.WithCancel(parent)
}

func (s *Server) sendCalcError(w http.ResponseWriter, err error) {
	var inputErr *mathlib.InputError
	if errors.As(err, &inputErr) {
		s.sendError(w, inputErr.Message, http.StatusBadRequest)
		return
	}
	if errors.Is(err, mathlib.ErrDomain) || errors.Is(err, mathlib.ErrOverflow) {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		s.sendError(w, "Network request timed out", http.StatusGatewayTimeout)
		return
	}

	var ce *rpcclient.CallError
	if errors.As(err, &ce) {
		status := http.StatusBadGateway
		if ce.Kind == rpcclient.KindTimeout {
			status = http.StatusGatewayTimeout
		}
		s.sendError(w, ce.UserMessage(), status)
		return
	}

	s.logger.WithError(err).Error("Calculation failed")
	s.sendError(w, "Calculation failed: "+err.Error(), http.StatusInternalServerError)
}

func (s *Server) record(fn mathlib.Function, impl contracts.Implementation, x *big.Int, r *contracts.Result, err error) {
	var elapsed time.Duration
	mock := false
	if r != nil {
		elapsed, mock = r.Elapsed, r.Mock
		s.opts.History.Record(string(fn), string(impl), elapsed)
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveCalculation(string(fn), string(impl), elapsed, mock, err)
	}
	s.opts.Audit.Calculation(string(fn), string(impl), fixedpoint.Format(x), r, err)
}

func (s *Server) recordComparison(c *contracts.Comparison) {
	s.record(c.Function, contracts.ImplSolidity, c.Input, c.Solidity, nil)
	s.record(c.Function, contracts.ImplRust, c.Input, c.Rust, nil)
	s.opts.Audit.Comparison(c)
}

// parseInput accepts a JSON string, parsed with parse, or a JSON number,
// which takes the float path a browser form value would.
func parseInput(raw json.RawMessage, parse func(string) (*big.Int, error)) (*big.Int, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fixedpoint.ErrInvalidNumber
	}
	switch v := v.(type) {
	case string:
		return parse(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", fixedpoint.ErrInvalidNumber, v)
		}
		return fixedpoint.FromFloat(f)
	default:
		return nil, fixedpoint.ErrInvalidNumber
	}
}
