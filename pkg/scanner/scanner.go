package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/luxfi/gasreplay/pkg/application"
	"github.com/luxfi/gasreplay/pkg/near"
)

// GasExhaustedMessage is the execution error text of a function call that ran out of
// prepaid gas.
const GasExhaustedMessage = "Exceeded the prepaid gas."

// TxSource looks up a transaction by hash and sender.
type TxSource interface {
	Tx(ctx context.Context, txHash, senderID string) (*near.FinalExecutionOutcome, error)
}

// Match is a receipt that failed with prepaid gas exhaustion.
type Match struct {
	Index   int
	Receipt near.ExecutionOutcomeWithID
}

// Scanner finds gas exhaustion failures in a transaction's receipt tree.
type Scanner struct {
	app    *application.GasReplay
	source TxSource
}

// New creates a scanner reading from source
func New(app *application.GasReplay, source TxSource) *Scanner {
	return &Scanner{app: app, source: source}
}

// IsGasExhaustion reports whether status is a function call failure with exactly the
// prepaid gas exhaustion message.
func IsGasExhaustion(status near.ExecutionStatus) bool {
	if status.Failure == nil || status.Failure.ActionError == nil {
		return false
	}
	fce := status.Failure.ActionError.Kind.FunctionCallError
	return fce != nil && fce.ExecutionError != nil && *fce.ExecutionError == GasExhaustedMessage
}

// FindGasExhaustion returns the receipts of outcome that ran out of prepaid gas, in
// receipt order.
func FindGasExhaustion(outcome *near.FinalExecutionOutcome) []Match {
	var matches []Match
	for i, r := range outcome.ReceiptsOutcome {
		if IsGasExhaustion(r.Outcome.Status) {
			matches = append(matches, Match{Index: i, Receipt: r})
		}
	}
	return matches
}

// Scan fetches the transaction and returns its gas exhaustion receipts. RPC errors are
// returned unchanged.
func (s *Scanner) Scan(ctx context.Context, txHash, senderID string) ([]Match, error) {
	s.app.Log.Info("Fetching transaction", "hash", txHash, "sender", senderID)

	outcome, err := s.source.Tx(ctx, txHash, senderID)
	if err != nil {
		return nil, err
	}

	matches := FindGasExhaustion(outcome)
	s.app.Log.Info("Scanned receipts", "receipts", len(outcome.ReceiptsOutcome), "matches", len(matches))
	return matches, nil
}

// Print writes each match the way the investigation reads them: id, executor, gas
// burnt and the full receipt.
func Print(w io.Writer, matches []Match) error {
	for _, m := range matches {
		fmt.Fprintln(w, "Found gas exhaustion in receipt:", m.Receipt.ID)
		fmt.Fprintln(w, "Executor:", m.Receipt.Outcome.ExecutorID)
		fmt.Fprintln(w, "Gas burnt:", m.Receipt.Outcome.GasBurnt)

		full, err := json.MarshalIndent(m.Receipt, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode receipt %s: %w", m.Receipt.ID, err)
		}
		fmt.Fprintln(w, "Full receipt:", string(full))
	}
	return nil
}
