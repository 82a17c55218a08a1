package types

import "math/big"

// Account holds the balances tracked for a vault participant. BalanceBase is
// denominated in the vault's settlement asset, BalanceTarget in the paired
// asset deployed to the liquidity venue.
type Account struct {
	Nonce         uint64   `json:"nonce"`
	BalanceBase   *big.Int `json:"balanceBase"`
	BalanceTarget *big.Int `json:"balanceTarget"`
}

// NewAccount returns an account with zeroed balances.
func NewAccount() *Account {
	return &Account{
		BalanceBase:   big.NewInt(0),
		BalanceTarget: big.NewInt(0),
	}
}
