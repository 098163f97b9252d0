package dao

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/gasreplay/pkg/near"
)

// Role kind discriminants as they appear on the wire
const (
	KindEveryone = "Everyone"
	KindMember   = "Member"
	KindGroup    = "Group"
)

// Well known role names of the investigated DAO
const (
	RoleRequestor = "Requestor"
	RoleApprover  = "Approver"
)

// RoleKind is the membership kind of a role: everyone, accounts holding at least a
// token balance, or an enumerated group. Unknown kinds are kept verbatim.
type RoleKind struct {
	Kind   string
	Member string
	Group  []string

	raw json.RawMessage
}

// IsGroup reports whether the role enumerates its members
func (k RoleKind) IsGroup() bool {
	return k.Kind == KindGroup
}

func (k *RoleKind) UnmarshalJSON(data []byte) error {
	*k = RoleKind{raw: append([]byte(nil), data...)}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		k.Kind = s
		return nil
	}

	var variants map[string]json.RawMessage
	if err := json.Unmarshal(data, &variants); err != nil {
		return fmt.Errorf("invalid role kind: %w", err)
	}
	if group, ok := variants[KindGroup]; ok {
		if err := json.Unmarshal(group, &k.Group); err != nil {
			return fmt.Errorf("invalid group members: %w", err)
		}
		k.Kind = KindGroup
		return nil
	}
	if member, ok := variants[KindMember]; ok {
		if err := json.Unmarshal(member, &k.Member); err != nil {
			return fmt.Errorf("invalid member balance: %w", err)
		}
		k.Kind = KindMember
	}
	return nil
}

func (k RoleKind) MarshalJSON() ([]byte, error) {
	switch k.Kind {
	case KindGroup:
		members := k.Group
		if members == nil {
			members = []string{}
		}
		return json.Marshal(map[string][]string{KindGroup: members})
	case KindMember:
		return json.Marshal(map[string]string{KindMember: k.Member})
	case KindEveryone:
		return json.Marshal(KindEveryone)
	}
	if len(k.raw) > 0 {
		return k.raw, nil
	}
	return nil, fmt.Errorf("role kind is empty")
}

// VotePolicy decides how votes are weighted and when a proposal passes. Threshold is
// either a [numerator, denominator] ratio or a fixed weight, kept raw.
type VotePolicy struct {
	WeightKind string          `json:"weight_kind"`
	Quorum     string          `json:"quorum"`
	Threshold  json.RawMessage `json:"threshold"`

	extra fields
}

func (v *VotePolicy) UnmarshalJSON(data []byte) error {
	type alias VotePolicy
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := a.extra.capture(data); err != nil {
		return err
	}
	*v = VotePolicy(a)
	return nil
}

func (v VotePolicy) MarshalJSON() ([]byte, error) {
	type alias VotePolicy
	return v.extra.overlay(alias(v))
}

// Role is a named set of accounts with permissions and per-kind vote policies.
type Role struct {
	Name        string                `json:"name"`
	Kind        RoleKind              `json:"kind"`
	Permissions []string              `json:"permissions"`
	VotePolicy  map[string]VotePolicy `json:"vote_policy"`

	extra fields
}

func (r *Role) UnmarshalJSON(data []byte) error {
	type alias Role
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := a.extra.capture(data); err != nil {
		return err
	}
	*r = Role(a)
	return nil
}

// MarshalJSON emits empty collections instead of null; the contract rejects null here.
func (r Role) MarshalJSON() ([]byte, error) {
	type alias Role
	a := alias(r)
	if a.Permissions == nil {
		a.Permissions = []string{}
	}
	if a.VotePolicy == nil {
		a.VotePolicy = map[string]VotePolicy{}
	}
	return r.extra.overlay(a)
}

// Policy is the DAO governance policy returned by get_policy and accepted by new.
type Policy struct {
	Roles                   []Role     `json:"roles"`
	DefaultVotePolicy       VotePolicy `json:"default_vote_policy"`
	ProposalBond            string     `json:"proposal_bond"`
	ProposalPeriod          string     `json:"proposal_period"`
	BountyBond              string     `json:"bounty_bond"`
	BountyForgivenessPeriod string     `json:"bounty_forgiveness_period"`

	extra fields
}

func (p *Policy) UnmarshalJSON(data []byte) error {
	type alias Policy
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := a.extra.capture(data); err != nil {
		return err
	}
	*p = Policy(a)
	return nil
}

func (p Policy) MarshalJSON() ([]byte, error) {
	type alias Policy
	return p.extra.overlay(alias(p))
}

// Role returns the first role with the given name, or nil
func (p *Policy) Role(name string) *Role {
	for i := range p.Roles {
		if p.Roles[i].Name == name {
			return &p.Roles[i]
		}
	}
	return nil
}

// AddToGroups appends accountID to the members of every role named in roles whose kind
// is Group. Roles of any other kind are left untouched. It returns the names of the
// roles that now contain the account.
func (p *Policy) AddToGroups(accountID string, roles ...string) []string {
	wanted := make(map[string]bool, len(roles))
	for _, r := range roles {
		wanted[r] = true
	}

	var added []string
	for i := range p.Roles {
		role := &p.Roles[i]
		if !wanted[role.Name] || !role.Kind.IsGroup() {
			continue
		}
		if !contains(role.Kind.Group, accountID) {
			role.Kind.Group = append(role.Kind.Group, accountID)
		}
		added = append(added, role.Name)
	}
	return added
}

// Bond returns the proposal bond, or fallback when the policy does not set one.
func (p *Policy) Bond(fallback *uint256.Int) (*uint256.Int, error) {
	if p.ProposalBond == "" {
		return fallback, nil
	}
	return near.ParseYocto(p.ProposalBond)
}

// Config is the DAO's descriptive configuration; passed back unchanged on init.
type Config struct {
	Name     string `json:"name"`
	Purpose  string `json:"purpose"`
	Metadata string `json:"metadata"`
}

// InitArgs are the arguments of the DAO's new method
type InitArgs struct {
	Config Config `json:"config"`
	Policy Policy `json:"policy"`
}

// fields holds every member of a decoded JSON object so that members the Go type does
// not model survive a decode and re-encode.
type fields map[string]json.RawMessage

func (f *fields) capture(data []byte) error {
	return json.Unmarshal(data, (*map[string]json.RawMessage)(f))
}

// overlay encodes v and adds the captured members v does not set itself.
func (f fields) overlay(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(f) == 0 {
		return data, err
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(data, &known); err != nil {
		return nil, err
	}
	merged := make(map[string]json.RawMessage, len(f)+len(known))
	for k, raw := range f {
		merged[k] = raw
	}
	for k, raw := range known {
		merged[k] = raw
	}
	return json.Marshal(merged)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
