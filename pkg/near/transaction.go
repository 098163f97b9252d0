package near

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/holiman/uint256"
	"golang.org/x/crypto/ed25519"
)

// Action discriminants in the borsh encoding of a transaction
const (
	actionCreateAccount  uint8 = 0
	actionDeployContract uint8 = 1
	actionFunctionCall   uint8 = 2
	actionTransfer       uint8 = 3
	actionAddKey         uint8 = 5
)

// access key permission discriminants
const (
	permissionFunctionCall uint8 = 0
	permissionFullAccess   uint8 = 1
)

// Action is one action of a transaction.
type Action interface {
	encode(w *borshWriter) error
}

// CreateAccount creates the receiver account
type CreateAccount struct{}

func (CreateAccount) encode(w *borshWriter) error {
	w.u8(actionCreateAccount)
	return nil
}

// DeployContract deploys Code on the receiver account
type DeployContract struct {
	Code []byte
}

func (a DeployContract) encode(w *borshWriter) error {
	w.u8(actionDeployContract)
	w.bytes(a.Code)
	return nil
}

// FunctionCall invokes MethodName on the receiver with raw Args.
type FunctionCall struct {
	MethodName string
	Args       []byte
	Gas        Gas
	Deposit    *uint256.Int
}

func (a FunctionCall) encode(w *borshWriter) error {
	w.u8(actionFunctionCall)
	w.string(a.MethodName)
	w.bytes(a.Args)
	w.u64(uint64(a.Gas))
	return w.u128(a.Deposit)
}

// Transfer moves Deposit yoctoNEAR to the receiver
type Transfer struct {
	Deposit *uint256.Int
}

func (a Transfer) encode(w *borshWriter) error {
	w.u8(actionTransfer)
	return w.u128(a.Deposit)
}

// AddKey adds a full access key to the receiver account
type AddKey struct {
	PublicKey ed25519.PublicKey
}

func (a AddKey) encode(w *borshWriter) error {
	if len(a.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key length %d", len(a.PublicKey))
	}
	w.u8(actionAddKey)
	w.u8(keyTypeED25519)
	w.fixed(a.PublicKey)
	w.u64(0) // access key nonce
	w.u8(permissionFullAccess)
	return nil
}

// Transaction is an unsigned NEAR transaction.
type Transaction struct {
	SignerID   string
	PublicKey  ed25519.PublicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]byte
	Actions    []Action
}

// Encode returns the borsh encoding of the transaction
func (t *Transaction) Encode() ([]byte, error) {
	var w borshWriter
	if err := t.encode(&w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (t *Transaction) encode(w *borshWriter) error {
	if len(t.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid signer public key length %d", len(t.PublicKey))
	}
	w.string(t.SignerID)
	w.u8(keyTypeED25519)
	w.fixed(t.PublicKey)
	w.u64(t.Nonce)
	w.string(t.ReceiverID)
	w.fixed(t.BlockHash[:])
	w.u32(uint32(len(t.Actions)))
	for i, a := range t.Actions {
		if err := a.encode(w); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

// Hash is the sha256 of the borsh encoded transaction; it is both the signed message
// and the transaction id.
func (t *Transaction) Hash() ([32]byte, error) {
	data, err := t.Encode()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// Sign hashes and signs the transaction
func (t *Transaction) Sign(key *KeyPair) (*SignedTransaction, error) {
	hash, err := t.Hash()
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{
		Transaction: t,
		Signature:   key.Sign(hash[:]),
		Hash:        hash,
	}, nil
}

// SignedTransaction is a transaction with its ed25519 signature.
type SignedTransaction struct {
	Transaction *Transaction
	Signature   []byte
	Hash        [32]byte
}

// Encode returns the borsh encoding of the signed transaction
func (s *SignedTransaction) Encode() ([]byte, error) {
	if len(s.Signature) != ed25519.SignatureSize {
		return nil, fmt.Errorf("invalid signature length %d", len(s.Signature))
	}
	var w borshWriter
	if err := s.Transaction.encode(&w); err != nil {
		return nil, err
	}
	w.u8(keyTypeED25519)
	w.fixed(s.Signature)
	return w.Bytes(), nil
}

// Base64 returns the encoding accepted by broadcast_tx_commit
func (s *SignedTransaction) Base64() (string, error) {
	data, err := s.Encode()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// HashString returns the base58 transaction id
func (s *SignedTransaction) HashString() string {
	return EncodeHash(s.Hash)
}
