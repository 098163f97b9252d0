package replay_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/holiman/uint256"

	"github.com/luxfi/gasreplay/pkg/dao"
	"github.com/luxfi/gasreplay/pkg/ft"
	"github.com/luxfi/gasreplay/pkg/near"
	"github.com/luxfi/gasreplay/pkg/replay"
	"github.com/luxfi/gasreplay/pkg/rpc"
	"github.com/luxfi/gasreplay/pkg/sandbox"
	"github.com/luxfi/gasreplay/pkg/scanner"
)

const (
	daoID   = "observant-machine.sputnik-dao.near"
	tokenID = "token.publicailab.near"
	rootID  = "test.near"
)

type recordedCall struct {
	Signer   string
	Receiver string
	Method   string
	Args     json.RawMessage
	Opts     sandbox.CallOptions
}

// fakeChain simulates just enough of the token and DAO contracts.
type fakeChain struct {
	threshold int

	failImport   string
	failVoteFrom string
	newFails     bool
	alreadyInit  bool

	defaultMetaFails bool
	failStorageFor   string

	imports   []sandbox.ImportOptions
	calls     []recordedCall
	tearDowns int

	tokenInit  string
	registered map[string]bool
	balances   map[string]string
	policy     *dao.Policy
	proposals  []dao.Proposal
}

func newFakeChain() *fakeChain {
	return &fakeChain{threshold: 3, registered: map[string]bool{}, balances: map[string]string{}}
}

func (c *fakeChain) launcher() replay.Launcher {
	return func(context.Context) (replay.Chain, error) {
		return c, nil
	}
}

func (c *fakeChain) Root() replay.Account {
	return &fakeAccount{id: rootID, chain: c}
}

func (c *fakeChain) ImportContract(_ context.Context, opts sandbox.ImportOptions) (replay.Account, error) {
	if opts.AccountID == c.failImport {
		return nil, fmt.Errorf("failed to view remote account %s: connection reset", opts.AccountID)
	}
	c.imports = append(c.imports, opts)
	return &fakeAccount{id: opts.AccountID, chain: c}, nil
}

func (c *fakeChain) CreateSubAccount(_ context.Context, name string, _ *uint256.Int) (replay.Account, error) {
	return &fakeAccount{id: name + "." + rootID, chain: c}, nil
}

func (c *fakeChain) TearDown() error {
	c.tearDowns++
	return nil
}

func (c *fakeChain) callsTo(method string) []recordedCall {
	var out []recordedCall
	for _, call := range c.calls {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

func success() *near.FinalExecutionOutcome {
	empty := ""
	return &near.FinalExecutionOutcome{Status: near.ExecutionStatus{SuccessValue: &empty}}
}

func failure(msg string) *near.FinalExecutionOutcome {
	status := executionError(msg)
	return &near.FinalExecutionOutcome{
		Status: status,
		ReceiptsOutcome: []near.ExecutionOutcomeWithID{
			{ID: "FailedReceipt", Outcome: near.ExecutionOutcome{Logs: []string{"panic: " + msg}, Status: status}},
		},
	}
}

func executionError(msg string) near.ExecutionStatus {
	index := uint64(0)
	return near.ExecutionStatus{Failure: &near.TxExecutionError{ActionError: &near.ActionError{
		Index: &index,
		Kind:  near.ActionErrorKind{FunctionCallError: &near.FunctionCallError{ExecutionError: &msg}},
	}}}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (c *fakeChain) member(role, account string) bool {
	if c.policy == nil {
		return false
	}
	r := c.policy.Role(role)
	return r != nil && r.Kind.IsGroup() && contains(r.Kind.Group, account)
}

func (c *fakeChain) exec(call recordedCall) (*near.FinalExecutionOutcome, error) {
	c.calls = append(c.calls, call)

	switch call.Receiver + "/" + call.Method {
	case tokenID + "/" + ft.MethodNew:
		if c.newFails {
			return failure("Smart contract panicked: method new not found"), nil
		}
		c.tokenInit = ft.MethodNew
	case tokenID + "/" + ft.MethodNewDefaultMeta:
		if c.defaultMetaFails {
			return failure("Smart contract panicked: method new_default_meta not found"), nil
		}
		c.tokenInit = ft.MethodNewDefaultMeta
	case tokenID + "/" + ft.MethodStorageDeposit:
		var args ft.StorageDepositArgs
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return nil, err
		}
		if args.AccountID == c.failStorageFor {
			return failure("Smart contract panicked: The attached deposit is less than the minimum storage balance"), nil
		}
		c.registered[args.AccountID] = true
	case tokenID + "/" + ft.MethodTransfer:
		if call.Opts.Deposit == nil || !call.Opts.Deposit.Eq(near.Yocto(1)) {
			return failure("Requires attached deposit of exactly 1 yoctoNEAR"), nil
		}
		var args ft.TransferArgs
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return nil, err
		}
		if !c.registered[args.ReceiverID] {
			return failure("Smart contract panicked: The account " + args.ReceiverID + " is not registered"), nil
		}
		c.balances[args.ReceiverID] = args.Amount

	case daoID + "/" + dao.MethodNew:
		if c.alreadyInit {
			return failure("Smart contract panicked: The contract has already been initialized"), nil
		}
		var args dao.InitArgs
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return nil, err
		}
		c.policy = &args.Policy
	case daoID + "/" + dao.MethodAddProposal:
		if !c.member(dao.RoleRequestor, call.Signer) {
			return failure("Smart contract panicked: ERR_PERMISSION_DENIED"), nil
		}
		var args dao.AddProposalArgs
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return nil, err
		}
		c.proposals = append(c.proposals, dao.Proposal{
			ID:          uint64(len(c.proposals)),
			Proposer:    call.Signer,
			Description: args.Proposal.Description,
			Kind:        args.Proposal.Kind,
			Status:      dao.StatusInProgress,
			Votes:       map[string]string{},
		})
	case daoID + "/" + dao.MethodActProposal:
		if call.Signer == c.failVoteFrom {
			return nil, errors.New("broadcast_tx_commit: request failed: connection refused")
		}
		return c.act(call)
	}
	return success(), nil
}

func (c *fakeChain) act(call recordedCall) (*near.FinalExecutionOutcome, error) {
	var args dao.ActProposalArgs
	if err := json.Unmarshal(call.Args, &args); err != nil {
		return nil, err
	}
	if args.ID >= uint64(len(c.proposals)) {
		return failure("Smart contract panicked: ERR_NO_PROPOSAL"), nil
	}
	if !c.member(dao.RoleApprover, call.Signer) {
		return failure("Smart contract panicked: ERR_PERMISSION_DENIED"), nil
	}

	p := &c.proposals[args.ID]
	p.Votes[call.Signer] = "Approve"
	if len(p.Votes) < c.threshold {
		return success(), nil
	}

	p.Status = dao.StatusApproved
	outcome := success()
	outcome.ReceiptsOutcome = []near.ExecutionOutcomeWithID{
		{ID: "ActReceipt", Outcome: near.ExecutionOutcome{ExecutorID: daoID, GasBurnt: 12 * uint64(near.TGas), Status: outcome.Status}},
		{ID: "TransferReceipt", Outcome: near.ExecutionOutcome{
			ExecutorID: daoID,
			GasBurnt:   uint64(call.Opts.Gas),
			Logs:       []string{"transfer " + tokenID},
			Status:     executionError(scanner.GasExhaustedMessage),
		}},
	}
	return outcome, nil
}

func (c *fakeChain) view(account, method string, args json.RawMessage) (interface{}, error) {
	switch account + "/" + method {
	case tokenID + "/" + ft.MethodMetadata:
		if c.tokenInit == "" {
			return nil, &rpc.QueryError{Message: "wasm execution failed with error: MethodResolveError", Logs: []string{}}
		}
		return ft.Metadata{Spec: ft.MetadataSpec, Name: "Public AI Token", Symbol: "PUBLICAI", Decimals: 18}, nil
	case tokenID + "/" + ft.MethodBalanceOf:
		var of ft.BalanceOfArgs
		if err := json.Unmarshal(args, &of); err != nil {
			return nil, err
		}
		if b, ok := c.balances[of.AccountID]; ok {
			return b, nil
		}
		return "0", nil
	case daoID + "/" + dao.MethodGetLastProposalID:
		return len(c.proposals), nil
	case daoID + "/" + dao.MethodGetProposal:
		var id dao.ProposalIDArgs
		if err := json.Unmarshal(args, &id); err != nil {
			return nil, err
		}
		if id.ID >= uint64(len(c.proposals)) {
			return nil, &rpc.QueryError{Message: "ERR_NO_PROPOSAL"}
		}
		return c.proposals[id.ID], nil
	}
	return nil, &rpc.QueryError{Message: "MethodNotFound: " + method}
}

func respond(v interface{}, out interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

type fakeAccount struct {
	id    string
	chain *fakeChain
}

func (a *fakeAccount) ID() string {
	return a.id
}

func (a *fakeAccount) CallRaw(_ context.Context, receiverID, method string, args interface{}, opts sandbox.CallOptions) (*near.FinalExecutionOutcome, error) {
	encoded, err := rpc.EncodeArgs(args)
	if err != nil {
		return nil, err
	}
	return a.chain.exec(recordedCall{Signer: a.id, Receiver: receiverID, Method: method, Args: encoded, Opts: opts})
}

func (a *fakeAccount) Call(ctx context.Context, receiverID, method string, args interface{}, opts sandbox.CallOptions) (*near.FinalExecutionOutcome, error) {
	outcome, err := a.CallRaw(ctx, receiverID, method, args, opts)
	if err != nil {
		return nil, err
	}
	return outcome, outcome.Err()
}

func (a *fakeAccount) View(_ context.Context, method string, args interface{}, out interface{}) error {
	encoded, err := rpc.EncodeArgs(args)
	if err != nil {
		return err
	}
	v, err := a.chain.view(a.id, method, encoded)
	if err != nil {
		return err
	}
	return respond(v, out)
}

func (a *fakeAccount) Balance(context.Context) (*uint256.Int, error) {
	return near.NEAR(10), nil
}

// fakeRemote serves the live DAO's views from testdata.
type fakeRemote struct {
	calls []string
}

func (r *fakeRemote) ViewFunction(_ context.Context, accountID, method string, args interface{}, out interface{}) error {
	r.calls = append(r.calls, method)
	if accountID != daoID {
		return &rpc.QueryError{Message: "unknown account " + accountID}
	}

	switch method {
	case dao.MethodGetPolicy:
		return readFixture("policy.json", out)
	case dao.MethodGetConfig:
		return respond(dao.Config{Name: "observant-machine", Purpose: "Public AI grants", Metadata: ""}, out)
	case dao.MethodGetProposal:
		encoded, err := rpc.EncodeArgs(args)
		if err != nil {
			return err
		}
		var id dao.ProposalIDArgs
		if err := json.Unmarshal(encoded, &id); err != nil {
			return err
		}
		if id.ID != 3 {
			return &rpc.QueryError{Message: "ERR_NO_PROPOSAL"}
		}
		return readFixture("proposal_3.json", out)
	}
	return &rpc.QueryError{Message: "MethodNotFound: " + method}
}

func readFixture(name string, out interface{}) error {
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
