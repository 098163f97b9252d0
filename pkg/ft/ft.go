// Package ft holds the NEP-141 fungible token methods and arguments used to bring an
// imported token contract into a usable state.
package ft

// Contract method names
const (
	MethodMetadata       = "ft_metadata"
	MethodBalanceOf      = "ft_balance_of"
	MethodNew            = "new"
	MethodNewDefaultMeta = "new_default_meta"
	MethodStorageDeposit = "storage_deposit"
	MethodTransfer       = "ft_transfer"
)

// MetadataSpec is the NEP-148 version string
const MetadataSpec = "ft-1.0.0"

// Metadata describes a token
type Metadata struct {
	Spec     string  `json:"spec"`
	Name     string  `json:"name"`
	Symbol   string  `json:"symbol"`
	Icon     *string `json:"icon,omitempty"`
	Decimals uint8   `json:"decimals"`
}

// NewArgs initialize a token with explicit metadata
type NewArgs struct {
	OwnerID     string   `json:"owner_id"`
	TotalSupply string   `json:"total_supply"`
	Metadata    Metadata `json:"metadata"`
}

// NewDefaultMetaArgs initialize a token with the contract's built-in metadata
type NewDefaultMetaArgs struct {
	OwnerID     string `json:"owner_id"`
	TotalSupply string `json:"total_supply"`
}

// StorageDepositArgs register an account with the token
type StorageDepositArgs struct {
	AccountID string `json:"account_id"`
}

// TransferArgs move tokens; the call must attach exactly one yoctoNEAR
type TransferArgs struct {
	ReceiverID string  `json:"receiver_id"`
	Amount     string  `json:"amount"`
	Memo       *string `json:"memo,omitempty"`
}

// BalanceOfArgs query one account's balance
type BalanceOfArgs struct {
	AccountID string `json:"account_id"`
}
