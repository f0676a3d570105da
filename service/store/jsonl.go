package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/brojonat/poolsniper/service/ledger"
)

// JSONLTradeLog appends completed trades to a JSON lines file.
// Existing lines are never rewritten.
type JSONLTradeLog struct {
	path string
	mu   sync.Mutex
}

func NewJSONLTradeLog(path string) *JSONLTradeLog {
	return &JSONLTradeLog{path: path}
}

// AppendCompletedTrade writes trade as one line.
func (s *JSONLTradeLog) AppendCompletedTrade(ctx context.Context, trade ledger.CompletedTrade) error {
	if trade.ID == "" || trade.Mint == "" {
		return fmt.Errorf("%w: trade requires id and mint", ErrInvalidInput)
	}

	line, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create trade log dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open trade log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write trade: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush trade log: %w", err)
	}
	return file.Sync()
}

// ReadTrades returns every trade in the log in append order.
// A missing file yields no trades.
func (s *JSONLTradeLog) ReadTrades() ([]ledger.CompletedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []ledger.CompletedTrade{}, nil
		}
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	defer file.Close()

	return DecodeTrades(file)
}

// DecodeTrades parses JSON lines from r. Blank lines are skipped.
func DecodeTrades(r io.Reader) ([]ledger.CompletedTrade, error) {
	trades := []ledger.CompletedTrade{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var trade ledger.CompletedTrade
		if err := json.Unmarshal(line, &trade); err != nil {
			return nil, fmt.Errorf("parse trade on line %d: %w", lineNo, err)
		}
		trades = append(trades, trade)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan trade log: %w", err)
	}
	return trades, nil
}
