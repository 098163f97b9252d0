package replay

import (
	"context"
	"errors"

	"github.com/holiman/uint256"

	"github.com/luxfi/gasreplay/pkg/application"
	"github.com/luxfi/gasreplay/pkg/near"
	"github.com/luxfi/gasreplay/pkg/rpc"
	"github.com/luxfi/gasreplay/pkg/sandbox"
)

// Account signs transactions on the local chain.
type Account interface {
	ID() string
	// CallRaw reports only transport errors; execution failures stay in the outcome.
	CallRaw(ctx context.Context, receiverID, method string, args interface{}, opts sandbox.CallOptions) (*near.FinalExecutionOutcome, error)
	// Call also fails on a failed execution, still returning the outcome.
	Call(ctx context.Context, receiverID, method string, args interface{}, opts sandbox.CallOptions) (*near.FinalExecutionOutcome, error)
	View(ctx context.Context, method string, args interface{}, out interface{}) error
	Balance(ctx context.Context) (*uint256.Int, error)
}

// Chain is the ephemeral environment a replay runs on.
type Chain interface {
	Root() Account
	ImportContract(ctx context.Context, opts sandbox.ImportOptions) (Account, error)
	CreateSubAccount(ctx context.Context, name string, balance *uint256.Int) (Account, error)
	TearDown() error
}

// Remote answers view calls against the live network.
type Remote interface {
	ViewFunction(ctx context.Context, accountID, method string, args interface{}, out interface{}) error
}

// Launcher starts a chain
type Launcher func(ctx context.Context) (Chain, error)

// SandboxLauncher starts a near-sandbox node that imports from remote.
func SandboxLauncher(app *application.GasReplay, opts sandbox.Options) Launcher {
	return func(ctx context.Context) (Chain, error) {
		sb, err := sandbox.Start(ctx, app, opts)
		if err != nil {
			return nil, err
		}
		return &sandboxChain{sb: sb}, nil
	}
}

type sandboxChain struct {
	sb *sandbox.Sandbox
}

func (c *sandboxChain) Root() Account {
	return c.sb.Root()
}

func (c *sandboxChain) ImportContract(ctx context.Context, opts sandbox.ImportOptions) (Account, error) {
	acc, err := c.sb.ImportContract(ctx, opts)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (c *sandboxChain) CreateSubAccount(ctx context.Context, name string, balance *uint256.Int) (Account, error) {
	acc, err := c.sb.CreateSubAccount(ctx, name, balance)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (c *sandboxChain) TearDown() error {
	return c.sb.TearDown()
}

// LoggedError is a failed execution together with the logs its receipts emitted.
type LoggedError struct {
	Err  error
	Logs []string
}

func (e *LoggedError) Error() string {
	return e.Err.Error()
}

func (e *LoggedError) Unwrap() error {
	return e.Err
}

func withLogs(outcome *near.FinalExecutionOutcome, err error) error {
	if err == nil || outcome == nil {
		return err
	}
	return &LoggedError{Err: err, Logs: outcome.Logs()}
}

// AttachedLogs returns every diagnostic log line carried by err.
func AttachedLogs(err error) []string {
	logs := rpc.ErrorLogs(err)
	var le *LoggedError
	if errors.As(err, &le) {
		logs = append(logs, le.Logs...)
	}
	return logs
}
