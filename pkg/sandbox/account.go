package sandbox

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/gasreplay/pkg/near"
	"github.com/luxfi/gasreplay/pkg/rpc"
)

// DefaultGas is attached to calls that do not set CallOptions.Gas
const DefaultGas = 30 * near.TGas

// CallOptions control the function call action of a transaction
type CallOptions struct {
	Gas     near.Gas
	Deposit *uint256.Int
}

// Account is a sandbox account with a full access key this process holds.
type Account struct {
	id     string
	key    *near.KeyPair
	client *rpc.Client
}

// NewAccount binds an account id and key to a sandbox client
func NewAccount(id string, key *near.KeyPair, client *rpc.Client) *Account {
	return &Account{id: id, key: key, client: client}
}

// ID returns the account id
func (a *Account) ID() string {
	return a.id
}

// Key returns the account's signing key
func (a *Account) Key() *near.KeyPair {
	return a.key
}

// CallRaw signs and submits a function call on receiverID and returns the outcome.
// Execution failures are left in the outcome; only transport and signing errors are
// returned.
func (a *Account) CallRaw(ctx context.Context, receiverID, method string, args interface{}, opts CallOptions) (*near.FinalExecutionOutcome, error) {
	encoded, err := rpc.EncodeArgs(args)
	if err != nil {
		return nil, err
	}
	gas := opts.Gas
	if gas == 0 {
		gas = DefaultGas
	}
	return a.SignAndSend(ctx, receiverID, near.FunctionCall{
		MethodName: method,
		Args:       encoded,
		Gas:        gas,
		Deposit:    opts.Deposit,
	})
}

// Call is CallRaw that also reports a failed execution as an error. The outcome is
// returned whenever the transaction was executed.
func (a *Account) Call(ctx context.Context, receiverID, method string, args interface{}, opts CallOptions) (*near.FinalExecutionOutcome, error) {
	outcome, err := a.CallRaw(ctx, receiverID, method, args, opts)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", receiverID, method, err)
	}
	if err := outcome.Err(); err != nil {
		return outcome, fmt.Errorf("%s.%s: %w", receiverID, method, err)
	}
	return outcome, nil
}

// View runs a view method on this account's contract
func (a *Account) View(ctx context.Context, method string, args interface{}, out interface{}) error {
	return a.client.ViewFunction(ctx, a.id, method, args, out)
}

// Balance returns the account's unlocked balance in yoctoNEAR
func (a *Account) Balance(ctx context.Context) (*uint256.Int, error) {
	view, err := a.client.ViewAccount(ctx, a.id)
	if err != nil {
		return nil, err
	}
	return near.ParseYocto(view.Amount)
}

// SignAndSend builds a transaction from this account to receiverID with the next
// nonce of its key and the latest final block hash, then waits for the outcome.
func (a *Account) SignAndSend(ctx context.Context, receiverID string, actions ...near.Action) (*near.FinalExecutionOutcome, error) {
	key, err := a.client.ViewAccessKey(ctx, a.id, a.key.PublicKeyString())
	if err != nil {
		return nil, fmt.Errorf("failed to read access key of %s: %w", a.id, err)
	}

	block, err := a.client.Block(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest block: %w", err)
	}
	blockHash, err := near.DecodeHash(block.Header.Hash)
	if err != nil {
		return nil, fmt.Errorf("invalid block hash: %w", err)
	}

	tx := &near.Transaction{
		SignerID:   a.id,
		PublicKey:  a.key.PublicKey(),
		Nonce:      key.Nonce + 1,
		ReceiverID: receiverID,
		BlockHash:  blockHash,
		Actions:    actions,
	}
	signed, err := tx.Sign(a.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return a.client.BroadcastTxCommit(ctx, signed)
}
