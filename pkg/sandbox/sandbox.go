// Package sandbox runs an ephemeral near-sandbox node and manages the accounts a replay
// needs on it.
package sandbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/luxfi/gasreplay/pkg/application"
	"github.com/luxfi/gasreplay/pkg/near"
	"github.com/luxfi/gasreplay/pkg/rpc"
)

// BinaryEnv overrides the sandbox binary location
const BinaryEnv = "NEAR_SANDBOX_BIN_PATH"

const (
	defaultBinary       = "near-sandbox"
	defaultStartTimeout = time.Minute
	stopTimeout         = 10 * time.Second
	pollInterval        = 250 * time.Millisecond

	// storage charged for the account record and one full access key
	accountStorage   = 100
	accessKeyStorage = 82
)

// Remote reads the live state that imports copy from
type Remote interface {
	ViewAccount(ctx context.Context, accountID string) (*near.AccountView, error)
	ViewCode(ctx context.Context, accountID string) (*near.ContractCodeView, error)
}

// Options for starting a sandbox
type Options struct {
	Binary       string
	HomeDir      string
	StartTimeout time.Duration
	Remote       Remote
}

// ImportOptions select the live account to copy
type ImportOptions struct {
	AccountID      string
	InitialBalance *uint256.Int
}

// Sandbox is a running near-sandbox node.
type Sandbox struct {
	app    *application.GasReplay
	client *rpc.Client
	remote Remote
	root   *Account

	home     string
	ownsHome bool
	cmd      *exec.Cmd
	logFile  *os.File
	exited   chan error

	stopOnce sync.Once
	stopErr  error
}

// Start initializes a home directory, launches the node and waits until its RPC
// answers. The caller must TearDown the returned sandbox.
func Start(ctx context.Context, app *application.GasReplay, opts Options) (*Sandbox, error) {
	binary, err := resolveBinary(opts.Binary)
	if err != nil {
		return nil, err
	}
	if opts.StartTimeout == 0 {
		opts.StartTimeout = defaultStartTimeout
	}

	s := &Sandbox{app: app, remote: opts.Remote, home: opts.HomeDir}
	if s.home == "" {
		if s.home, err = os.MkdirTemp("", "gasreplay-sandbox-"); err != nil {
			return nil, fmt.Errorf("failed to create sandbox home: %w", err)
		}
		s.ownsHome = true
	}

	if err := s.start(ctx, binary, opts.StartTimeout); err != nil {
		if terr := s.TearDown(); terr != nil {
			app.Log.Warn("Sandbox teardown failed", "error", terr)
		}
		return nil, err
	}
	return s, nil
}

func (s *Sandbox) start(ctx context.Context, binary string, timeout time.Duration) error {
	if err := s.initHome(ctx, binary); err != nil {
		return err
	}

	rpcPort, err := freePort()
	if err != nil {
		return err
	}
	netPort, err := freePort()
	if err != nil {
		return err
	}

	s.logFile, err = os.Create(filepath.Join(s.home, "sandbox.log"))
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	s.cmd = exec.Command(binary, "--home", s.home, "run",
		"--rpc-addr", fmt.Sprintf("0.0.0.0:%d", rpcPort),
		"--network-addr", fmt.Sprintf("0.0.0.0:%d", netPort),
	)
	s.cmd.Stdout = s.logFile
	s.cmd.Stderr = s.logFile
	if err := s.cmd.Start(); err != nil {
		s.cmd = nil
		return fmt.Errorf("failed to start sandbox: %w", err)
	}
	s.exited = make(chan error, 1)
	go func() {
		s.exited <- s.cmd.Wait()
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d", rpcPort)
	s.client = s.app.Client("sandbox", url)
	s.app.Log.Info("Started sandbox", "rpc", url, "home", s.home, "pid", s.cmd.Process.Pid)

	if err := s.waitReady(ctx, timeout); err != nil {
		return err
	}

	root, err := loadValidatorKey(filepath.Join(s.home, "validator_key.json"))
	if err != nil {
		return err
	}
	s.root = NewAccount(root.AccountID, root.key, s.client)
	return nil
}

// initHome runs init unless the home already holds a node config from an earlier run
func (s *Sandbox) initHome(ctx context.Context, binary string) error {
	if _, err := os.Stat(filepath.Join(s.home, "config.json")); err == nil {
		s.app.Log.Info("Reusing sandbox home", "home", s.home)
		return nil
	}
	initCmd := exec.CommandContext(ctx, binary, "--home", s.home, "init")
	if out, err := initCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("sandbox init failed: %w: %s", err, out)
	}
	return nil
}

func (s *Sandbox) waitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if _, err := s.client.Status(ctx); err == nil {
			return nil
		}
		select {
		case err := <-s.exited:
			s.exited <- err
			return fmt.Errorf("sandbox exited during startup: %v (see %s)", err, s.logFile.Name())
		case <-ctx.Done():
			return fmt.Errorf("sandbox not ready after %s: %w", timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Client returns the RPC client of the sandbox node
func (s *Sandbox) Client() *rpc.Client {
	return s.client
}

// Root returns the sandbox's validator account
func (s *Sandbox) Root() *Account {
	return s.root
}

// ImportContract copies a live account's balance, code hash and code (but no contract
// state) into the sandbox under a fresh full access key. Accounts unknown to the
// remote are created as plain accounts.
func (s *Sandbox) ImportContract(ctx context.Context, opts ImportOptions) (*Account, error) {
	if s.remote == nil {
		return nil, errors.New("sandbox has no remote to import from")
	}

	state := near.AccountState{Locked: "0", CodeHash: near.EmptyCodeHash}
	var code []byte

	view, err := s.remote.ViewAccount(ctx, opts.AccountID)
	switch {
	case rpc.IsCause(err, "UNKNOWN_ACCOUNT"):
		s.app.Log.Warn("Account not found on remote, creating plain account", "account", opts.AccountID)
		state.Amount = "0"
	case err != nil:
		return nil, fmt.Errorf("failed to view remote account %s: %w", opts.AccountID, err)
	default:
		state.Amount = view.Amount
		state.CodeHash = view.CodeHash
		if view.HasContract() {
			cv, err := s.remote.ViewCode(ctx, opts.AccountID)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch code of %s: %w", opts.AccountID, err)
			}
			if code, err = base64.StdEncoding.DecodeString(cv.CodeBase64); err != nil {
				return nil, fmt.Errorf("invalid code of %s: %w", opts.AccountID, err)
			}
		}
	}
	if opts.InitialBalance != nil {
		state.Amount = opts.InitialBalance.Dec()
	}
	state.StorageUsage = uint64(len(code)) + accountStorage + accessKeyStorage

	key, err := near.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := s.client.PatchState(ctx, importRecords(opts.AccountID, state, code, key)); err != nil {
		return nil, fmt.Errorf("failed to patch %s into sandbox: %w", opts.AccountID, err)
	}

	s.app.Log.Info("Imported account", "account", opts.AccountID, "code", len(code), "balance", state.Amount)
	return NewAccount(opts.AccountID, key, s.client), nil
}

func importRecords(accountID string, state near.AccountState, code []byte, key *near.KeyPair) []near.StateRecord {
	records := []near.StateRecord{
		{Account: &near.AccountRecord{AccountID: accountID, Account: state}},
	}
	if state.CodeHash != near.EmptyCodeHash {
		records = append(records, near.StateRecord{Contract: &near.ContractRecord{
			AccountID: accountID,
			Code:      base64.StdEncoding.EncodeToString(code),
		}})
	}
	return append(records, near.StateRecord{AccessKey: &near.AccessKeyRecord{
		AccountID: accountID,
		PublicKey: key.PublicKeyString(),
		AccessKey: near.AccessKeyPolicy{Permission: near.FullAccessPermission},
	}})
}

// CreateSubAccount creates name.<root> funded with balance, with a fresh full access
// key.
func (s *Sandbox) CreateSubAccount(ctx context.Context, name string, balance *uint256.Int) (*Account, error) {
	if s.root == nil {
		return nil, errors.New("sandbox has no root account")
	}
	key, err := near.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	id := name + "." + s.root.ID()
	outcome, err := s.root.SignAndSend(ctx, id,
		near.CreateAccount{},
		near.Transfer{Deposit: balance},
		near.AddKey{PublicKey: key.PublicKey()},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", id, err)
	}
	if err := outcome.Err(); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", id, err)
	}

	s.app.Log.Info("Created account", "account", id, "balance", near.FormatNEAR(balance))
	return NewAccount(id, key, s.client), nil
}

// TearDown stops the node and removes its home directory. It is safe to call more
// than once.
func (s *Sandbox) TearDown() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stop()
	})
	return s.stopErr
}

func (s *Sandbox) stop() error {
	var errs []error
	if s.cmd != nil && s.cmd.Process != nil {
		if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
			s.app.Log.Warn("Failed to stop sandbox gracefully", "error", err)
			_ = s.cmd.Process.Kill()
		}
		select {
		case <-s.exited:
		case <-time.After(stopTimeout):
			_ = s.cmd.Process.Kill()
			<-s.exited
		}
	}
	if s.logFile != nil {
		if err := s.logFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.ownsHome && s.home != "" {
		if err := os.RemoveAll(s.home); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove sandbox home: %w", err))
		}
	}
	s.app.Log.Info("Sandbox stopped", "home", s.home)
	return errors.Join(errs...)
}

func resolveBinary(binary string) (string, error) {
	if binary == "" {
		binary = os.Getenv(BinaryEnv)
	}
	if binary == "" {
		binary = defaultBinary
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("sandbox binary %q not found (set %s): %w", binary, BinaryEnv, err)
	}
	return path, nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to allocate port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

type validatorKey struct {
	AccountID  string `json:"account_id"`
	PublicKey  string `json:"public_key"`
	SecretKey  string `json:"secret_key"`
	PrivateKey string `json:"private_key"`

	key *near.KeyPair
}

func loadValidatorKey(path string) (*validatorKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read validator key: %w", err)
	}
	var vk validatorKey
	if err := json.Unmarshal(data, &vk); err != nil {
		return nil, fmt.Errorf("invalid validator key %s: %w", path, err)
	}
	secret := vk.SecretKey
	if secret == "" {
		secret = vk.PrivateKey
	}
	if vk.AccountID == "" || secret == "" {
		return nil, fmt.Errorf("validator key %s lacks account_id or secret key", path)
	}
	if vk.key, err = near.ParseKeyPair(secret); err != nil {
		return nil, fmt.Errorf("invalid validator key %s: %w", path, err)
	}
	return &vk, nil
}
