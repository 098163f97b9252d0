// Package replay reproduces a DAO governance flow on a local sandbox: it imports the
// live DAO and token code, rebuilds the state they need, patches the live policy and
// votes a transfer proposal through so the executing receipts can be inspected.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/holiman/uint256"

	"github.com/luxfi/gasreplay/pkg/application"
	"github.com/luxfi/gasreplay/pkg/core"
	"github.com/luxfi/gasreplay/pkg/dao"
	"github.com/luxfi/gasreplay/pkg/ft"
	"github.com/luxfi/gasreplay/pkg/near"
	"github.com/luxfi/gasreplay/pkg/sandbox"
	"github.com/luxfi/gasreplay/pkg/scanner"
)

// LocalProposalID is the id the first proposal of a freshly initialized DAO receives
const LocalProposalID = 0

// StepResult records how one step of the replay went.
type StepResult struct {
	Name       string
	BestEffort bool
	Err        error
	Duration   time.Duration
}

// Report is what a replay observed.
type Report struct {
	Steps     []StepResult
	Policy    *dao.Policy
	Proposal  *dao.Proposal
	FinalVote *near.FinalExecutionOutcome
	Matches   []scanner.Match
}

// Failed returns the steps that returned an error
func (r *Report) Failed() []StepResult {
	var failed []StepResult
	for _, s := range r.Steps {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// Replayer runs the governance replay
type Replayer struct {
	app    *application.GasReplay
	cfg    core.ReplayConfig
	remote Remote
	launch Launcher
	out    io.Writer

	userBalance     *uint256.Int
	approverBalance *uint256.Int
	storageDeposit  *uint256.Int
	fallbackBond    *uint256.Int
}

// New creates a Replayer. cfg must already be normalized.
func New(app *application.GasReplay, cfg core.ReplayConfig, remote Remote, launch Launcher) (*Replayer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Replayer{
		app:    app,
		cfg:    cfg,
		remote: remote,
		launch: launch,
		out:    app.Out,
	}
	// amounts were checked by Validate
	r.userBalance, _ = near.ParseYocto(cfg.UserBalance)
	r.approverBalance, _ = near.ParseYocto(cfg.ApproverBalance)
	r.storageDeposit, _ = near.ParseYocto(cfg.StorageDeposit)
	r.fallbackBond, _ = near.ParseYocto(cfg.DefaultProposalBond)
	return r, nil
}

// run holds the state threaded through the steps of one replay
type run struct {
	chain     Chain
	root      Account
	dao       Account
	token     Account
	user      Account
	approvers []Account

	policy dao.Policy
	config dao.Config
	bond   *uint256.Int
	report *Report
}

type step struct {
	name       string
	bestEffort bool
	fn         func(ctx context.Context, s *run) error
}

func (r *Replayer) steps() []step {
	return []step{
		{"import contracts", false, r.importContracts},
		{"create user", false, r.createUser},
		{"import approvers", false, r.importApprovers},
		{"initialize token", true, r.initToken},
		{"fund token accounts", true, r.fundTokenAccounts},
		{"fetch policy", false, r.fetchPolicy},
		{"patch policy", false, r.patchPolicy},
		{"initialize dao", true, r.initDAO},
		{"fetch reference proposal", true, r.fetchReferenceProposal},
		{"check user balance", false, r.checkUserBalance},
		{"add proposal", true, r.addProposal},
		{"check proposals", true, r.checkProposals},
		{"vote", false, r.vote},
		{"check proposal status", false, r.checkStatus},
		{"inspect receipts", false, r.inspectReceipts},
	}
}

// Run starts the chain, executes every step and tears the chain down on every exit
// path. Best-effort steps that fail are logged and skipped; a failing required step
// ends the run with its error. The report is returned in both cases.
func (r *Replayer) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	r.app.Log.Info("Setting up sandbox environment")
	chain, err := r.launch(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to start sandbox: %w", err)
	}
	defer func() {
		if terr := chain.TearDown(); terr != nil {
			r.app.Log.Warn("Sandbox teardown failed", "error", terr)
		}
	}()

	s := &run{chain: chain, root: chain.Root(), report: report}
	for _, st := range r.steps() {
		start := time.Now()
		err := st.fn(ctx, s)
		report.Steps = append(report.Steps, StepResult{
			Name:       st.name,
			BestEffort: st.bestEffort,
			Err:        err,
			Duration:   time.Since(start),
		})
		if err == nil {
			continue
		}
		if st.bestEffort {
			r.app.Log.Warn("Step failed, continuing", "step", st.name, "error", err)
			r.logAttached(err)
			continue
		}

		r.app.Log.Error("Error reproducing transaction", "step", st.name, "error", err)
		r.logAttached(err)
		return report, fmt.Errorf("%s: %w", st.name, err)
	}
	return report, nil
}

func (r *Replayer) logAttached(err error) {
	for _, line := range AttachedLogs(err) {
		r.app.Log.Error("Log", "line", line)
	}
}

func (r *Replayer) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format, args...)
}

func (r *Replayer) printJSON(label string, v interface{}, limit int) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		r.printf("%s <unprintable: %v>\n", label, err)
		return
	}
	r.printf("%s %s\n", label, truncate(string(data), limit))
}

// truncate cuts text to at most limit bytes without splitting a UTF-8 sequence. A
// limit of zero disables truncation.
func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func (r *Replayer) importContracts(ctx context.Context, s *run) error {
	r.printf("📦 Importing contracts from mainnet without data...\n")
	var err error
	if s.dao, err = s.chain.ImportContract(ctx, sandbox.ImportOptions{AccountID: r.cfg.DAOContract}); err != nil {
		return err
	}
	if s.token, err = s.chain.ImportContract(ctx, sandbox.ImportOptions{AccountID: r.cfg.TokenContract}); err != nil {
		return err
	}
	r.printf("Token contract account ID: %s\n", s.token.ID())
	return nil
}

func (r *Replayer) createUser(ctx context.Context, s *run) error {
	user, err := s.chain.CreateSubAccount(ctx, r.cfg.UserName, r.userBalance)
	if err != nil {
		return err
	}
	s.user = user
	r.printf("👤 Created named user account: %s\n", user.ID())
	return nil
}

func (r *Replayer) importApprovers(ctx context.Context, s *run) error {
	for _, id := range r.cfg.Approvers {
		acc, err := s.chain.ImportContract(ctx, sandbox.ImportOptions{AccountID: id, InitialBalance: r.approverBalance})
		if err != nil {
			return err
		}
		s.approvers = append(s.approvers, acc)
	}
	r.printf("✅ Contracts imported successfully\n")
	return nil
}

func (r *Replayer) initToken(ctx context.Context, s *run) error {
	var meta ft.Metadata
	err := s.token.View(ctx, ft.MethodMetadata, nil, &meta)
	if err == nil {
		r.printJSON("Token metadata:", meta, 0)
		return nil
	}
	r.app.Log.Info("Token contract not initialized, initializing", "reason", err)

	gas := sandbox.CallOptions{Gas: near.Gas(r.cfg.Gas.TokenInit) * near.TGas}
	_, err = s.token.Call(ctx, s.token.ID(), ft.MethodNew, ft.NewArgs{
		OwnerID:     s.token.ID(),
		TotalSupply: r.cfg.TokenSupply,
		Metadata: ft.Metadata{
			Spec:     ft.MetadataSpec,
			Name:     r.cfg.TokenMetadata.Name,
			Symbol:   r.cfg.TokenMetadata.Symbol,
			Decimals: r.cfg.TokenMetadata.Decimals,
		},
	}, gas)
	if err == nil {
		r.printf("Token contract initialized with %s()\n", ft.MethodNew)
		return nil
	}
	r.app.Log.Warn("Token initialization failed", "method", ft.MethodNew, "error", err)

	_, err = s.token.Call(ctx, s.token.ID(), ft.MethodNewDefaultMeta, ft.NewDefaultMetaArgs{
		OwnerID:     s.token.ID(),
		TotalSupply: r.cfg.TokenSupply,
	}, gas)
	if err != nil {
		return fmt.Errorf("token initialization failed: %w", err)
	}
	r.printf("Token contract initialized with %s()\n", ft.MethodNewDefaultMeta)
	return nil
}

// tokenCall is one call of the token setup
type tokenCall struct {
	desc   string
	signer Account
	method string
	args   interface{}
	opts   sandbox.CallOptions
}

// fundTokenAccounts registers the DAO and the receiver with the token and moves tokens
// to the DAO. Every call is attempted; failed executions are logged and only transport
// errors end the step.
func (r *Replayer) fundTokenAccounts(ctx context.Context, s *run) error {
	r.printf("💰 Setting up token balances...\n")
	gas := near.Gas(r.cfg.Gas.Storage) * near.TGas
	deposit := sandbox.CallOptions{Gas: gas, Deposit: r.storageDeposit}

	calls := []tokenCall{
		{"register " + s.dao.ID(), s.dao, ft.MethodStorageDeposit, ft.StorageDepositArgs{AccountID: s.dao.ID()}, deposit},
		{"register " + r.cfg.Receiver, s.root, ft.MethodStorageDeposit, ft.StorageDepositArgs{AccountID: r.cfg.Receiver}, deposit},
		{"fund " + s.dao.ID(), s.token, ft.MethodTransfer, ft.TransferArgs{
			ReceiverID: s.dao.ID(),
			Amount:     r.cfg.DAOTokenAmount,
		}, sandbox.CallOptions{Gas: gas, Deposit: near.Yocto(1)}},
	}

	failed := 0
	for _, c := range calls {
		outcome, err := c.signer.CallRaw(ctx, s.token.ID(), c.method, c.args, c.opts)
		if err != nil {
			return fmt.Errorf("%s: %w", c.desc, err)
		}
		if ferr := outcome.Err(); ferr != nil {
			failed++
			r.app.Log.Warn("Token setup call failed", "call", c.desc, "error", ferr)
			r.logAttached(withLogs(outcome, ferr))
			continue
		}
		r.printf("✓ %s\n", c.desc)
	}

	var balance string
	if err := s.token.View(ctx, ft.MethodBalanceOf, ft.BalanceOfArgs{AccountID: s.dao.ID()}, &balance); err != nil {
		r.app.Log.Warn("Could not read DAO token balance", "error", err)
	} else {
		r.printf("DAO token balance: %s\n", balance)
	}

	if failed > 0 {
		r.printf("Token balances set up with %d failed call(s)\n", failed)
		return nil
	}
	r.printf("Token balances set up\n")
	return nil
}

func (r *Replayer) fetchPolicy(ctx context.Context, s *run) error {
	r.printf("📜 Fetching DAO policy and config from mainnet...\n")
	if err := r.remote.ViewFunction(ctx, r.cfg.DAOContract, dao.MethodGetPolicy, nil, &s.policy); err != nil {
		return err
	}
	if err := r.remote.ViewFunction(ctx, r.cfg.DAOContract, dao.MethodGetConfig, nil, &s.config); err != nil {
		return err
	}
	s.report.Policy = &s.policy

	r.printJSON("Policy fetched (first 200 chars):", s.policy, 200)
	r.printJSON("Config fetched:", s.config, 0)
	r.printf("Proposal bond from policy: %s\n", s.policy.ProposalBond)

	r.printJSON("Default vote policy:", s.policy.DefaultVotePolicy, 0)
	for _, role := range s.policy.Roles {
		if role.Name != dao.RoleApprover && role.VotePolicy == nil {
			continue
		}
		r.printf("Role: %s\n", role.Name)
		r.printJSON("  Vote policy:", role.VotePolicy, 0)
		r.printJSON("  Kind:", role.Kind, 0)
	}
	return nil
}

func (r *Replayer) patchPolicy(_ context.Context, s *run) error {
	for _, role := range s.policy.AddToGroups(s.user.ID(), dao.RoleRequestor, dao.RoleApprover) {
		r.printf("Added %s to %s role\n", s.user.ID(), role)
	}
	bond, err := s.policy.Bond(r.fallbackBond)
	if err != nil {
		return fmt.Errorf("invalid proposal bond: %w", err)
	}
	s.bond = bond
	return nil
}

func (r *Replayer) initDAO(ctx context.Context, s *run) error {
	r.printf("🏛  Initializing DAO contract with modified policy...\n")
	outcome, err := s.dao.Call(ctx, s.dao.ID(), dao.MethodNew, dao.InitArgs{Config: s.config, Policy: s.policy},
		sandbox.CallOptions{Gas: near.Gas(r.cfg.Gas.DAOInit) * near.TGas})
	if dao.IsAlreadyInitialized(err) {
		r.app.Log.Info("DAO already initialized", "dao", s.dao.ID())
		return nil
	}
	if err != nil {
		return withLogs(outcome, err)
	}
	r.printf("DAO initialized successfully\n")
	return nil
}

func (r *Replayer) fetchReferenceProposal(ctx context.Context, s *run) error {
	id := r.cfg.ReferenceProposalID
	args, err := json.Marshal(dao.ProposalIDArgs{ID: id})
	if err != nil {
		return err
	}

	var ref dao.Proposal
	if err := r.remote.ViewFunction(ctx, r.cfg.DAOContract, dao.MethodGetProposal, args, &ref); err != nil {
		return fmt.Errorf("failed to fetch mainnet proposal %d: %w", id, err)
	}
	r.printJSON(fmt.Sprintf("Mainnet proposal %d:", id), ref, 500)
	if t := ref.Kind.Transfer; t != nil {
		r.printf("Mainnet proposal %d transfers %s of %s to %s\n", id, t.Amount, t.TokenID, t.ReceiverID)
	}
	return nil
}

func (r *Replayer) checkUserBalance(ctx context.Context, s *run) error {
	balance, err := s.user.Balance(ctx)
	if err != nil {
		return err
	}
	r.printf("User balance before proposal: %s\n", balance.Dec())
	return nil
}

func (r *Replayer) addProposal(ctx context.Context, s *run) error {
	r.printf("📝 Creating proposal %d with transfer...\n", LocalProposalID)
	r.printf("Using proposal bond: %s\n", s.bond.Dec())

	args := dao.AddProposalArgs{Proposal: dao.ProposalInput{
		Description: r.cfg.ProposalDescription,
		Kind: dao.ProposalKind{Transfer: &dao.Transfer{
			TokenID:    s.token.ID(),
			ReceiverID: r.cfg.Receiver,
			Amount:     r.cfg.ProposalAmount,
		}},
	}}
	outcome, err := s.user.Call(ctx, s.dao.ID(), dao.MethodAddProposal, args, sandbox.CallOptions{
		Gas:     near.Gas(r.cfg.Gas.AddProposal) * near.TGas,
		Deposit: s.bond,
	})
	if err != nil {
		return withLogs(outcome, err)
	}
	r.printf("Created proposal %d\n", LocalProposalID)
	r.printJSON("Transaction result:", outcome.Transaction, 0)
	return nil
}

func (r *Replayer) checkProposals(ctx context.Context, s *run) error {
	var last uint64
	if err := s.dao.View(ctx, dao.MethodGetLastProposalID, nil, &last); err != nil {
		return err
	}
	r.printf("Last proposal ID: %d\n", last)

	var proposal dao.Proposal
	if err := s.dao.View(ctx, dao.MethodGetProposal, dao.ProposalIDArgs{ID: LocalProposalID}, &proposal); err != nil {
		return err
	}
	s.report.Proposal = &proposal
	r.printJSON(fmt.Sprintf("Proposal %d:", LocalProposalID), proposal, 300)
	return nil
}

func (r *Replayer) vote(ctx context.Context, s *run) error {
	voters := append([]Account{s.user}, s.approvers...)
	r.printf("🗳  Voting with %d Approvers to reach threshold...\n", len(voters))

	args := dao.ActProposalArgs{ID: LocalProposalID, Action: dao.ActionVoteApprove}
	for i, voter := range voters {
		final := i == len(voters)-1
		tgas := r.cfg.Gas.Vote
		if final {
			tgas = r.cfg.Gas.FinalVote
			r.printf("Vote %d from: %s - This should trigger execution\n", i+1, voter.ID())
		} else {
			r.printf("Vote %d from: %s\n", i+1, voter.ID())
		}

		outcome, err := voter.CallRaw(ctx, s.dao.ID(), dao.MethodActProposal, args, sandbox.CallOptions{
			Gas: near.Gas(tgas) * near.TGas,
		})
		if err != nil {
			return fmt.Errorf("vote %d from %s: %w", i+1, voter.ID(), err)
		}
		if ferr := outcome.Err(); ferr != nil {
			r.app.Log.Warn("Vote failed", "voter", voter.ID(), "error", ferr)
		}
		if final {
			s.report.FinalVote = outcome
		}
	}
	return nil
}

func (r *Replayer) checkStatus(ctx context.Context, s *run) error {
	r.printf("Transaction result status: %s\n", s.report.FinalVote.Status)

	var proposal dao.Proposal
	if err := s.dao.View(ctx, dao.MethodGetProposal, dao.ProposalIDArgs{ID: LocalProposalID}, &proposal); err != nil {
		return err
	}
	s.report.Proposal = &proposal
	r.printf("Proposal status after vote: %s\n", proposal.Status)
	return nil
}

func (r *Replayer) inspectReceipts(_ context.Context, s *run) error {
	final := s.report.FinalVote
	r.printf("\n🔍 Checking receipts for gas exhaustion...\n")
	r.printf("Number of receipts: %d\n", len(final.ReceiptsOutcome))
	for _, receipt := range final.ReceiptsOutcome {
		r.printf("Receipt ID: %s\n", receipt.ID)
		r.printf("Executor: %s\n", receipt.Outcome.ExecutorID)
		r.printf("Gas burnt: %d\n", receipt.Outcome.GasBurnt)
		r.printJSON("Status:", receipt.Outcome.Status, 0)
		if len(receipt.Outcome.Logs) > 0 {
			r.printf("Logs: %v\n", receipt.Outcome.Logs)
		}
		if scanner.IsGasExhaustion(receipt.Outcome.Status) {
			r.printf("⚠️  Gas exhaustion reproduced in receipt %s\n", receipt.ID)
		}
		r.printf("---\n")
	}
	s.report.Matches = scanner.FindGasExhaustion(final)
	return nil
}
