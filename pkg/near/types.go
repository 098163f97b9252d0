package near

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EmptyCodeHash is the code hash reported for accounts without a deployed contract.
const EmptyCodeHash = "11111111111111111111111111111111"

// Finality values accepted by query-style RPC methods
const (
	FinalityFinal      = "final"
	FinalityOptimistic = "optimistic"
)

// ExecutionStatus is the outcome status of a transaction or receipt.
//
// The RPC encodes it either as a bare string ("Unknown", "NotStarted", "Started") or as
// a single-key object ("SuccessValue", "SuccessReceiptId", "Failure").
type ExecutionStatus struct {
	SuccessValue     *string           `json:"SuccessValue,omitempty"`
	SuccessReceiptID *string           `json:"SuccessReceiptId,omitempty"`
	Failure          *TxExecutionError `json:"Failure,omitempty"`

	// Plain holds the bare string form.
	Plain string `json:"-"`
}

func (s *ExecutionStatus) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		*s = ExecutionStatus{}
		return json.Unmarshal(data, &s.Plain)
	}

	type alias ExecutionStatus
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = ExecutionStatus(a)
	return nil
}

func (s ExecutionStatus) MarshalJSON() ([]byte, error) {
	if s.Plain != "" {
		return json.Marshal(s.Plain)
	}
	type alias ExecutionStatus
	return json.Marshal(alias(s))
}

// IsFailure reports whether the status carries a failure
func (s ExecutionStatus) IsFailure() bool {
	return s.Failure != nil
}

// String renders the status compactly for console output
func (s ExecutionStatus) String() string {
	switch {
	case s.Plain != "":
		return s.Plain
	case s.SuccessValue != nil:
		return "SuccessValue"
	case s.SuccessReceiptID != nil:
		return "SuccessReceiptId(" + *s.SuccessReceiptID + ")"
	case s.Failure != nil:
		return "Failure(" + s.Failure.String() + ")"
	}
	return "Unknown"
}

// TxExecutionError is the payload of a Failure status.
type TxExecutionError struct {
	ActionError    *ActionError    `json:"ActionError,omitempty"`
	InvalidTxError json.RawMessage `json:"InvalidTxError,omitempty"`
}

func (e *TxExecutionError) String() string {
	data, err := json.Marshal(e)
	if err != nil {
		return "<unprintable failure>"
	}
	return string(data)
}

// ActionError describes the failure of one action within a receipt.
type ActionError struct {
	Index *uint64         `json:"index,omitempty"`
	Kind  ActionErrorKind `json:"kind"`
}

// ActionErrorKind keeps the raw kind and decodes the FunctionCallError variant when
// present. Every other variant is carried through untouched.
type ActionErrorKind struct {
	FunctionCallError *FunctionCallError

	raw json.RawMessage
}

func (k *ActionErrorKind) UnmarshalJSON(data []byte) error {
	k.raw = append(k.raw[:0], data...)
	k.FunctionCallError = nil

	var variants map[string]json.RawMessage
	if err := json.Unmarshal(data, &variants); err != nil {
		// string variants such as "DelegateActionExpired"
		return nil
	}
	if fc, ok := variants["FunctionCallError"]; ok {
		var fce FunctionCallError
		if err := json.Unmarshal(fc, &fce); err == nil {
			k.FunctionCallError = &fce
		}
	}
	return nil
}

func (k ActionErrorKind) MarshalJSON() ([]byte, error) {
	if len(k.raw) > 0 {
		return k.raw, nil
	}
	if k.FunctionCallError != nil {
		return json.Marshal(map[string]*FunctionCallError{"FunctionCallError": k.FunctionCallError})
	}
	return []byte("null"), nil
}

// FunctionCallError is the error raised by a contract function call.
type FunctionCallError struct {
	ExecutionError     *string         `json:"ExecutionError,omitempty"`
	MethodResolveError json.RawMessage `json:"MethodResolveError,omitempty"`
	CompilationError   json.RawMessage `json:"CompilationError,omitempty"`
	LinkError          json.RawMessage `json:"LinkError,omitempty"`
	WasmTrap           json.RawMessage `json:"WasmTrap,omitempty"`
	HostError          json.RawMessage `json:"HostError,omitempty"`
}

// ExecutionOutcome is the result of executing a transaction or a receipt.
type ExecutionOutcome struct {
	Logs        []string        `json:"logs"`
	ReceiptIDs  []string        `json:"receipt_ids"`
	GasBurnt    uint64          `json:"gas_burnt"`
	TokensBurnt string          `json:"tokens_burnt"`
	ExecutorID  string          `json:"executor_id"`
	Status      ExecutionStatus `json:"status"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// ExecutionOutcomeWithID pairs an outcome with the id of the receipt or transaction
// that produced it.
type ExecutionOutcomeWithID struct {
	Proof     json.RawMessage  `json:"proof,omitempty"`
	BlockHash string           `json:"block_hash"`
	ID        string           `json:"id"`
	Outcome   ExecutionOutcome `json:"outcome"`
}

// TransactionView is the signed transaction as echoed back by the RPC.
type TransactionView struct {
	SignerID   string          `json:"signer_id"`
	PublicKey  string          `json:"public_key"`
	Nonce      uint64          `json:"nonce"`
	ReceiverID string          `json:"receiver_id"`
	Actions    json.RawMessage `json:"actions"`
	Signature  string          `json:"signature"`
	Hash       string          `json:"hash"`
}

// FinalExecutionOutcome is the full result of a transaction: its own outcome plus the
// ordered outcomes of every receipt it spawned.
type FinalExecutionOutcome struct {
	FinalExecutionStatus string                   `json:"final_execution_status,omitempty"`
	Status               ExecutionStatus          `json:"status"`
	Transaction          TransactionView          `json:"transaction"`
	TransactionOutcome   ExecutionOutcomeWithID   `json:"transaction_outcome"`
	ReceiptsOutcome      []ExecutionOutcomeWithID `json:"receipts_outcome"`
}

// ExecutionError is returned when a transaction was accepted but its execution failed.
type ExecutionError struct {
	TxHash  string
	Failure *TxExecutionError
}

func (e *ExecutionError) Error() string {
	if e.TxHash == "" {
		return "execution failed: " + e.Failure.String()
	}
	return fmt.Sprintf("transaction %s failed: %s", e.TxHash, e.Failure.String())
}

// Err returns an *ExecutionError when the overall status is a failure.
func (o *FinalExecutionOutcome) Err() error {
	if o == nil || !o.Status.IsFailure() {
		return nil
	}
	return &ExecutionError{TxHash: o.Transaction.Hash, Failure: o.Status.Failure}
}

// Logs collects the logs of the transaction outcome and every receipt outcome.
func (o *FinalExecutionOutcome) Logs() []string {
	var logs []string
	logs = append(logs, o.TransactionOutcome.Outcome.Logs...)
	for _, r := range o.ReceiptsOutcome {
		logs = append(logs, r.Outcome.Logs...)
	}
	return logs
}

// DecodeSuccessValue JSON-decodes the base64 success value into out. An empty
// success value leaves out untouched.
func (o *FinalExecutionOutcome) DecodeSuccessValue(out interface{}) error {
	if err := o.Err(); err != nil {
		return err
	}
	if o.Status.SuccessValue == nil || *o.Status.SuccessValue == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(*o.Status.SuccessValue)
	if err != nil {
		return fmt.Errorf("failed to decode success value: %w", err)
	}
	return json.Unmarshal(data, out)
}

// Bytes is a byte slice encoded by the RPC as a JSON array of numbers.
type Bytes []byte

func (b *Bytes) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value %d out of range at index %d", v, i)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

func (b Bytes) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

// CallResult is the result of a call_function query.
type CallResult struct {
	Result      Bytes    `json:"result"`
	Logs        []string `json:"logs"`
	BlockHeight uint64   `json:"block_height"`
	BlockHash   string   `json:"block_hash"`
}

// AccountView is the result of a view_account query.
type AccountView struct {
	Amount        string `json:"amount"`
	Locked        string `json:"locked"`
	CodeHash      string `json:"code_hash"`
	StorageUsage  uint64 `json:"storage_usage"`
	StoragePaidAt uint64 `json:"storage_paid_at"`
	BlockHeight   uint64 `json:"block_height"`
	BlockHash     string `json:"block_hash"`
}

// HasContract reports whether the account has code deployed
func (a *AccountView) HasContract() bool {
	return a.CodeHash != "" && a.CodeHash != EmptyCodeHash
}

// ContractCodeView is the result of a view_code query.
type ContractCodeView struct {
	CodeBase64  string `json:"code_base64"`
	Hash        string `json:"hash"`
	BlockHeight uint64 `json:"block_height"`
	BlockHash   string `json:"block_hash"`
}

// AccessKeyView is the result of a view_access_key query.
type AccessKeyView struct {
	Nonce       uint64          `json:"nonce"`
	Permission  json.RawMessage `json:"permission"`
	BlockHeight uint64          `json:"block_height"`
	BlockHash   string          `json:"block_hash"`
}

// BlockHeader holds the header fields this tool needs.
type BlockHeader struct {
	Height    uint64 `json:"height"`
	Hash      string `json:"hash"`
	PrevHash  string `json:"prev_hash"`
	Timestamp uint64 `json:"timestamp"`
}

// BlockView is the result of the block method.
type BlockView struct {
	Author string      `json:"author"`
	Header BlockHeader `json:"header"`
}

// SyncInfo is part of the status response
type SyncInfo struct {
	LatestBlockHash   string `json:"latest_block_hash"`
	LatestBlockHeight uint64 `json:"latest_block_height"`
	Syncing           bool   `json:"syncing"`
}

// StatusView is the result of the status method.
type StatusView struct {
	ChainID  string   `json:"chain_id"`
	SyncInfo SyncInfo `json:"sync_info"`
}

// StateRecord is one record accepted by sandbox_patch_state. Exactly one field is set.
type StateRecord struct {
	Account   *AccountRecord   `json:"Account,omitempty"`
	Contract  *ContractRecord  `json:"Contract,omitempty"`
	AccessKey *AccessKeyRecord `json:"AccessKey,omitempty"`
}

// AccountRecord creates or replaces an account
type AccountRecord struct {
	AccountID string       `json:"account_id"`
	Account   AccountState `json:"account"`
}

// AccountState is the account body of an AccountRecord
type AccountState struct {
	Amount       string `json:"amount"`
	Locked       string `json:"locked"`
	CodeHash     string `json:"code_hash"`
	StorageUsage uint64 `json:"storage_usage"`
}

// ContractRecord deploys base64 encoded code on an account
type ContractRecord struct {
	AccountID string `json:"account_id"`
	Code      string `json:"code"`
}

// AccessKeyRecord adds an access key to an account
type AccessKeyRecord struct {
	AccountID string          `json:"account_id"`
	PublicKey string          `json:"public_key"`
	AccessKey AccessKeyPolicy `json:"access_key"`
}

// AccessKeyPolicy is the body of an AccessKeyRecord
type AccessKeyPolicy struct {
	Nonce      uint64 `json:"nonce"`
	Permission string `json:"permission"`
}

// FullAccessPermission grants every action to a key
const FullAccessPermission = "FullAccess"
