package core

import (
	"fmt"

	"github.com/luxfi/gasreplay/pkg/near"
)

// ScanConfig selects the transaction to inspect
type ScanConfig struct {
	TxHash   string `mapstructure:"tx_hash" json:"tx_hash"`
	SenderID string `mapstructure:"sender_id" json:"sender_id"`
}

// Default transaction under investigation
const (
	DefaultTxHash   = "7XiaQG8YVv5BsJQETBG9iEDrSag6TyCcpGe6f5jAm3LF"
	DefaultSenderID = "aurora"
)

// Normalize applies defaults
func (c *ScanConfig) Normalize() {
	if c.TxHash == "" {
		c.TxHash = DefaultTxHash
	}
	if c.SenderID == "" {
		c.SenderID = DefaultSenderID
	}
}

// Validate ensures the transaction reference is well formed
func (c *ScanConfig) Validate() error {
	if _, err := near.DecodeHash(c.TxHash); err != nil {
		return ErrInvalidField("tx_hash", err)
	}
	if c.SenderID == "" {
		return ErrInvalidConfig("sender account required")
	}
	return nil
}

// TokenMetadata is the metadata used when the imported token needs initializing
type TokenMetadata struct {
	Name     string `mapstructure:"name" json:"name"`
	Symbol   string `mapstructure:"symbol" json:"symbol"`
	Decimals uint8  `mapstructure:"decimals" json:"decimals"`
}

// GasConfig holds the prepaid gas of every call the replay makes, in TGas
type GasConfig struct {
	TokenInit   uint64 `mapstructure:"token_init" json:"token_init"`
	Storage     uint64 `mapstructure:"storage" json:"storage"`
	DAOInit     uint64 `mapstructure:"dao_init" json:"dao_init"`
	AddProposal uint64 `mapstructure:"add_proposal" json:"add_proposal"`
	Vote        uint64 `mapstructure:"vote" json:"vote"`
	FinalVote   uint64 `mapstructure:"final_vote" json:"final_vote"`
}

// ReplayConfig specifies the governance replay. Amounts are decimal yoctoNEAR (or token
// base units) strings.
type ReplayConfig struct {
	DAOContract   string   `mapstructure:"dao_contract" json:"dao_contract"`
	TokenContract string   `mapstructure:"token_contract" json:"token_contract"`
	Approvers     []string `mapstructure:"approvers" json:"approvers"`
	Receiver      string   `mapstructure:"receiver" json:"receiver"`

	UserName        string `mapstructure:"user_name" json:"user_name"`
	UserBalance     string `mapstructure:"user_balance" json:"user_balance"`
	ApproverBalance string `mapstructure:"approver_balance" json:"approver_balance"`

	TokenSupply    string        `mapstructure:"token_supply" json:"token_supply"`
	TokenMetadata  TokenMetadata `mapstructure:"token_metadata" json:"token_metadata"`
	StorageDeposit string        `mapstructure:"storage_deposit" json:"storage_deposit"`
	DAOTokenAmount string        `mapstructure:"dao_token_amount" json:"dao_token_amount"`

	ProposalDescription string `mapstructure:"proposal_description" json:"proposal_description"`
	ProposalAmount      string `mapstructure:"proposal_amount" json:"proposal_amount"`
	ReferenceProposalID uint64 `mapstructure:"reference_proposal_id" json:"reference_proposal_id"`
	DefaultProposalBond string `mapstructure:"default_proposal_bond" json:"default_proposal_bond"`

	Gas GasConfig `mapstructure:"gas" json:"gas"`
}

// RequiredVotes is the number of approvals that crosses the investigated DAO's threshold
const RequiredVotes = 3

// DefaultReplayConfig returns the configuration that replays the failed transfer vote of
// observant-machine.sputnik-dao.near
func DefaultReplayConfig() ReplayConfig {
	c := ReplayConfig{
		TokenMetadata:       TokenMetadata{Decimals: 18},
		ReferenceProposalID: 3,
	}
	c.Normalize()
	return c
}

// Normalize fills empty strings, empty lists and zero gas with defaults. Zero is a valid
// token decimals and proposal id, so those are only defaulted by DefaultReplayConfig.
func (c *ReplayConfig) Normalize() {
	setDefault(&c.DAOContract, "observant-machine.sputnik-dao.near")
	setDefault(&c.TokenContract, "token.publicailab.near")
	if len(c.Approvers) == 0 {
		c.Approvers = []string{
			"d3caa4b1eb280d9ff1cfb67246d926a072796ee5ad67f5321f439f9a0a949bc4",
			"00c0c884f532f40ba3d477ade970098cb15bb6a92cfd10581b59a38e25c94149",
		}
	}
	setDefault(&c.Receiver, "b0075da69a92926de3355bf080e6d7988ef06eb1f1061899908a5e896b06452f")

	setDefault(&c.UserName, "alice")
	setDefault(&c.UserBalance, near.NEAR(10).Dec())
	setDefault(&c.ApproverBalance, near.NEAR(1).Dec())

	setDefault(&c.TokenSupply, "1000000000000000000000000000")
	setDefault(&c.TokenMetadata.Name, "Public AI Token")
	setDefault(&c.TokenMetadata.Symbol, "PUBLICAI")
	setDefault(&c.StorageDeposit, "1250000000000000000000")
	setDefault(&c.DAOTokenAmount, "10000000000000000000")

	setDefault(&c.ProposalDescription, "Test transfer proposal")
	setDefault(&c.ProposalAmount, "1000000000000000000")
	setDefault(&c.DefaultProposalBond, near.NEAR(1).Dec())

	g := &c.Gas
	setDefaultUint(&g.TokenInit, 100)
	setDefaultUint(&g.Storage, 30)
	setDefaultUint(&g.DAOInit, 300)
	setDefaultUint(&g.AddProposal, 100)
	setDefaultUint(&g.Vote, 100)
	setDefaultUint(&g.FinalVote, 300)
}

// Validate ensures the replay configuration is usable
func (c *ReplayConfig) Validate() error {
	if c.DAOContract == "" || c.TokenContract == "" {
		return ErrInvalidConfig("dao and token contracts required")
	}
	if len(c.Approvers) != RequiredVotes-1 {
		return ErrInvalidConfigf("exactly %d approver accounts required, got %d", RequiredVotes-1, len(c.Approvers))
	}
	if c.UserName == "" {
		return ErrInvalidConfig("user name required")
	}

	amounts := map[string]string{
		"user_balance":          c.UserBalance,
		"approver_balance":      c.ApproverBalance,
		"token_supply":          c.TokenSupply,
		"storage_deposit":       c.StorageDeposit,
		"dao_token_amount":      c.DAOTokenAmount,
		"proposal_amount":       c.ProposalAmount,
		"default_proposal_bond": c.DefaultProposalBond,
	}
	for name, value := range amounts {
		if _, err := near.ParseYocto(value); err != nil {
			return ErrInvalidField(name, err)
		}
	}

	maxGas := uint64(300)
	for name, tgas := range map[string]uint64{
		"token_init":   c.Gas.TokenInit,
		"storage":      c.Gas.Storage,
		"dao_init":     c.Gas.DAOInit,
		"add_proposal": c.Gas.AddProposal,
		"vote":         c.Gas.Vote,
		"final_vote":   c.Gas.FinalVote,
	} {
		if tgas > maxGas {
			return ErrInvalidField("gas."+name, fmt.Errorf("%d TGas exceeds the %d TGas limit", tgas, maxGas))
		}
	}
	return nil
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setDefaultUint(field *uint64, value uint64) {
	if *field == 0 {
		*field = value
	}
}
