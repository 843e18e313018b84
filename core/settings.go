package core

import "sort"

// Settings holds the token-level configuration that is immutable except
// through an explicit owner-authorized admin mutation: identity
// (name/symbol/decimals), the owner and minter set, the fee policy and
// its recipient, and free-form presentation metadata restored from
// original_source/src/dft_types/src/token_description.rs and
// token_setting.rs (description + optional logo bytes), which spec.md's
// data model only references in passing.
type Settings struct {
	Name     string
	Symbol   string
	Decimals uint8

	Owner   TokenHolder
	Minters map[string]TokenHolder

	Fee   TokenFee
	FeeTo TokenHolder

	Description string
	Logo        []byte
}

// NewSettings constructs the initial settings for a freshly initialized
// ledger. owner is also the initial fee recipient, matching the
// reference canister's init behavior.
func NewSettings(name, symbol string, decimals uint8, owner TokenHolder, fee TokenFee) *Settings {
	return &Settings{
		Name:     name,
		Symbol:   symbol,
		Decimals: decimals,
		Owner:    owner,
		Minters:  make(map[string]TokenHolder),
		Fee:      fee,
		FeeTo:    owner,
	}
}

// OnlyOwner enforces spec §4.4: caller must not be anonymous and must
// equal the configured owner principal.
func (s *Settings) OnlyOwner(caller Principal) error {
	if caller.IsAnonymous() {
		return NewError(CodeNotAllowAnonymous, "anonymous caller may not act as owner")
	}
	if s.Owner.Kind != HolderPrincipal || !s.Owner.Principal().Equal(caller) {
		return NewError(CodeOnlyOwner, "caller is not the token owner")
	}
	return nil
}

// OnlyMinter enforces spec §4.4: caller must not be anonymous and must
// be either the owner or a registered minter.
func (s *Settings) OnlyMinter(caller Principal) error {
	if caller.IsAnonymous() {
		return NewError(CodeNotAllowAnonymous, "anonymous caller may not mint")
	}
	if s.Owner.Kind == HolderPrincipal && s.Owner.Principal().Equal(caller) {
		return nil
	}
	if _, ok := s.Minters[caller.String()]; ok {
		return nil
	}
	return NewError(CodeOnlyMinter, "caller is not an authorized minter")
}

// SetOwner replaces the owner holder, returning the previous value.
func (s *Settings) SetOwner(newOwner TokenHolder) TokenHolder {
	prev := s.Owner
	s.Owner = newOwner
	return prev
}

// SetFee replaces the fee policy, returning the previous value.
func (s *Settings) SetFee(fee TokenFee) TokenFee {
	prev := s.Fee
	s.Fee = fee
	return prev
}

// SetFeeTo replaces the fee recipient, returning the previous value.
// A None holder is rejected by the caller before reaching here
// (InvalidFeeTo).
func (s *Settings) SetFeeTo(feeTo TokenHolder) TokenHolder {
	prev := s.FeeTo
	s.FeeTo = feeTo
	return prev
}

// AddMinter registers minter, returning false if already present.
func (s *Settings) AddMinter(minter Principal) bool {
	key := minter.String()
	if _, ok := s.Minters[key]; ok {
		return false
	}
	h, _ := NewPrincipalHolder(minter)
	s.Minters[key] = h
	return true
}

// RemoveMinter unregisters minter, returning false if it was absent.
func (s *Settings) RemoveMinter(minter Principal) bool {
	key := minter.String()
	if _, ok := s.Minters[key]; !ok {
		return false
	}
	delete(s.Minters, key)
	return true
}

// MinterList returns the registered minters in a stable, deterministic
// order for query responses.
func (s *Settings) MinterList() []TokenHolder {
	keys := make([]string, 0, len(s.Minters))
	for k := range s.Minters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]TokenHolder, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.Minters[k])
	}
	return out
}

// SetDescription and SetLogo mutate presentation metadata only — per
// the Open Question resolution, neither appends a chain block.
func (s *Settings) SetDescription(desc string) { s.Description = desc }

func (s *Settings) SetLogo(logo []byte) { s.Logo = append([]byte{}, logo...) }
