package dao

import (
	"encoding/json"
	"errors"
	"strings"
)

// Contract method names
const (
	MethodNew               = "new"
	MethodGetPolicy         = "get_policy"
	MethodGetConfig         = "get_config"
	MethodGetProposal       = "get_proposal"
	MethodGetLastProposalID = "get_last_proposal_id"
	MethodAddProposal       = "add_proposal"
	MethodActProposal       = "act_proposal"
)

// ProposalStatus is the lifecycle state of a proposal
type ProposalStatus string

const (
	StatusInProgress ProposalStatus = "InProgress"
	StatusApproved   ProposalStatus = "Approved"
	StatusRejected   ProposalStatus = "Rejected"
	StatusRemoved    ProposalStatus = "Removed"
	StatusExpired    ProposalStatus = "Expired"
	StatusMoved      ProposalStatus = "Moved"
	StatusFailed     ProposalStatus = "Failed"
)

// Action is what a member does to a proposal
type Action string

const (
	ActionVoteApprove Action = "VoteApprove"
	ActionVoteReject  Action = "VoteReject"
	ActionVoteRemove  Action = "VoteRemove"
	ActionFinalize    Action = "Finalize"
)

// Transfer moves Amount of TokenID (empty for NEAR) to ReceiverID. A nil Msg is sent as
// null, selecting ft_transfer over ft_transfer_call.
type Transfer struct {
	TokenID    string  `json:"token_id"`
	ReceiverID string  `json:"receiver_id"`
	Amount     string  `json:"amount"`
	Msg        *string `json:"msg"`
}

// ProposalKind is the payload of a proposal. Only Transfer is modelled; other kinds
// round-trip unchanged.
type ProposalKind struct {
	Transfer *Transfer

	raw json.RawMessage
}

func (k *ProposalKind) UnmarshalJSON(data []byte) error {
	*k = ProposalKind{raw: append([]byte(nil), data...)}

	var variants map[string]json.RawMessage
	if err := json.Unmarshal(data, &variants); err != nil {
		// string kinds such as "Vote"
		return nil
	}
	if t, ok := variants["Transfer"]; ok {
		var transfer Transfer
		if err := json.Unmarshal(t, &transfer); err != nil {
			return err
		}
		k.Transfer = &transfer
	}
	return nil
}

func (k ProposalKind) MarshalJSON() ([]byte, error) {
	if k.Transfer != nil {
		return json.Marshal(map[string]*Transfer{"Transfer": k.Transfer})
	}
	if len(k.raw) > 0 {
		return k.raw, nil
	}
	return nil, errors.New("proposal kind is empty")
}

// ProposalInput is the proposal submitted by add_proposal
type ProposalInput struct {
	Description string       `json:"description"`
	Kind        ProposalKind `json:"kind"`
}

// AddProposalArgs are the arguments of add_proposal
type AddProposalArgs struct {
	Proposal ProposalInput `json:"proposal"`
}

// ActProposalArgs are the arguments of act_proposal
type ActProposalArgs struct {
	ID     uint64 `json:"id"`
	Action Action `json:"action"`
}

// ProposalIDArgs select a proposal by id
type ProposalIDArgs struct {
	ID uint64 `json:"id"`
}

// Proposal is a proposal as returned by get_proposal.
type Proposal struct {
	ID             uint64            `json:"id"`
	Proposer       string            `json:"proposer"`
	Description    string            `json:"description"`
	Kind           ProposalKind      `json:"kind"`
	Status         ProposalStatus    `json:"status"`
	VoteCounts     json.RawMessage   `json:"vote_counts"`
	Votes          map[string]string `json:"votes"`
	SubmissionTime string            `json:"submission_time"`
}

// IsAlreadyInitialized reports whether err is the contract refusing a second init.
func IsAlreadyInitialized(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already been initialized") || strings.Contains(msg, "already initialized")
}
