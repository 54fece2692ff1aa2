// Package econ holds the economic parameters of the simulation and the
// arithmetic that must be bit-for-bit reproducible across restarts and
// replays: the demurrage charge and money formatting.
//
// All money values are signed 64-bit integers with 4 implied decimal
// places (one coin == 10000 units). Parameters load as defaults and may
// be overlaid from an optional YAML file; they are read once at boot and
// never change while the server runs, since journal replay re-executes
// old commands under the current parameter set.
package econ

import (
	"fmt"
	"math/bits"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Coin is one whole unit of the currency in balance units.
const Coin = 10000

// CoinDecimals is Coin expressed as a number of decimal places.
const CoinDecimals = 4

// Params are the tunables of the economy. Zero values are invalid; use
// Default() and optionally overlay a file with Load().
type Params struct {
	// Ticker is the display symbol of the currency.
	Ticker string `yaml:"ticker"`

	// UBIAmount is the daily income paid to trusted, active accounts.
	UBIAmount int64 `yaml:"ubi_amount"`

	// DailyAccountFee is charged to every account each tick. Accounts
	// that cannot pay it in full and end non-positive are deleted.
	DailyAccountFee int64 `yaml:"daily_account_fee"`

	// TransactionFee is the flat anti-spam fee on writes.
	TransactionFee int64 `yaml:"transaction_fee"`

	// NonreciprocalValidationFee is charged when validating a peer who
	// does not validate you back.
	NonreciprocalValidationFee int64 `yaml:"nonreciprocal_validation_fee"`

	// DemurrageMultiplier is the daily decay factor as a decimal string,
	// e.g. "0.9998595764738929" for roughly 5%/year. It is kept as a
	// string so the exact rational is reproducible on every host.
	DemurrageMultiplier string `yaml:"demurrage_multiplier"`

	// MinInviteAmount is the smallest gift a sponsor may lock for an
	// invited user.
	MinInviteAmount int64 `yaml:"min_invite_amount"`

	// InviteTimeoutMinutes is how long an invitation code lives.
	InviteTimeoutMinutes int32 `yaml:"invite_timeout_minutes"`

	// MaxPendingInvites caps live invitation codes per sponsor.
	MaxPendingInvites int `yaml:"max_pending_invites"`

	// MaxUniqueValidationIDs caps the unique peers across an account's
	// inbound and outbound validation links.
	MaxUniqueValidationIDs int `yaml:"max_unique_validation_ids"`

	// AuthTotalVotes is the full complement of voters in a trust election.
	AuthTotalVotes int `yaml:"auth_total_votes"`

	// AuthPerVoteFee is the per-voter fee for a self-requested election.
	AuthPerVoteFee int64 `yaml:"auth_per_vote_fee"`

	// AuthChallengePerVoteFee is the per-voter fee when challenging
	// someone else's trusted status.
	AuthChallengePerVoteFee int64 `yaml:"auth_challenge_per_vote_fee"`

	// AuthTimeoutMinutes is how long an election may stay open.
	AuthTimeoutMinutes int32 `yaml:"auth_timeout_minutes"`

	// InactivityMinutes is the last-login age past which an account stops
	// receiving UBI and starts losing balance.
	InactivityMinutes int32 `yaml:"inactivity_minutes"`

	// SessionTimeoutMinutes is the idle timeout of login sessions.
	SessionTimeoutMinutes int32 `yaml:"session_timeout_minutes"`

	// MaxUserAccounts caps the number of simultaneous accounts.
	MaxUserAccounts int `yaml:"max_user_accounts"`

	// MaxBurnCommentBytes caps the caller-supplied comment in a burn
	// receipt.
	MaxBurnCommentBytes int `yaml:"max_burn_comment_bytes"`

	// demurrage as an exact fraction num/den, precomputed by Validate.
	demNum, demDen uint64
}

// Default returns the stock parameter set.
func Default() *Params {
	p := &Params{
		Ticker:                     "BAS",
		UBIAmount:                  24 * Coin,
		DailyAccountFee:            100,
		TransactionFee:             10,
		NonreciprocalValidationFee: 100,
		DemurrageMultiplier:        "0.9998595764738929",
		MinInviteAmount:            (24 * Coin * 3) / 2,
		InviteTimeoutMinutes:       7 * 24 * 60,
		MaxPendingInvites:          20,
		MaxUniqueValidationIDs:     150,
		AuthTotalVotes:             15,
		AuthPerVoteFee:             1 * Coin,
		AuthChallengePerVoteFee:    20 * Coin,
		AuthTimeoutMinutes:         7 * 24 * 60,
		InactivityMinutes:          1461 * 24 * 60,
		SessionTimeoutMinutes:      60,
		MaxUserAccounts:            1_000_000,
		MaxBurnCommentBytes:        600,
	}
	if err := p.Validate(); err != nil {
		panic(err) // defaults are always valid
	}
	return p
}

// Load returns Default overlaid with the YAML file at path. A missing
// path ("" or nonexistent file) yields the defaults unchanged.
func Load(path string) (*Params, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("read params file: %w", err)
	}
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("parse params file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("params file %s: %w", path, err)
	}
	return p, nil
}

// Validate checks ranges and precomputes the demurrage fraction.
func (p *Params) Validate() error {
	if p.UBIAmount <= 0 || p.TransactionFee < 0 || p.DailyAccountFee < 0 {
		return fmt.Errorf("invalid fee configuration")
	}
	if p.AuthTotalVotes < 1 {
		return fmt.Errorf("auth_total_votes must be at least 1")
	}
	if p.MaxUserAccounts < 1 {
		return fmt.Errorf("max_user_accounts must be at least 1")
	}
	num, den, err := parseDecimalFraction(p.DemurrageMultiplier)
	if err != nil {
		return fmt.Errorf("demurrage_multiplier: %w", err)
	}
	if num >= den {
		return fmt.Errorf("demurrage_multiplier must be below 1")
	}
	p.demNum, p.demDen = num, den
	return nil
}

// ApplyDailyDemurrage returns the balance after one day of decay.
//
// The result is floor(balance * num/den) computed in 128-bit integer
// arithmetic, so every host and every replay agrees exactly. If the
// floor leaves a positive balance unchanged, one extra unit is shaved
// off so a dust balance always converges to zero instead of stalling.
// Non-positive balances are never touched.
func (p *Params) ApplyDailyDemurrage(balance int64) int64 {
	if balance <= 0 {
		return balance
	}
	hi, lo := bits.Mul64(uint64(balance), p.demNum)
	// hi < demDen always holds: balance < 2^63 and num < den, so the
	// product is below 2^63 * den and the quotient fits 64 bits.
	q, _ := bits.Div64(hi, lo, p.demDen)
	reduced := int64(q)
	if reduced == balance {
		reduced--
	}
	return reduced
}

// parseDecimalFraction turns a decimal string like "0.99985" into an
// exact num/den pair (99985 / 100000).
func parseDecimalFraction(s string) (num, den uint64, err error) {
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 18 {
		return 0, 0, fmt.Errorf("too many decimal places in %q", s)
	}
	den = 1
	for range frac {
		den *= 10
	}
	var parsed uint64
	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return 0, 0, fmt.Errorf("not a decimal number: %q", s)
		}
		parsed = parsed*10 + uint64(r-'0')
	}
	return parsed, den, nil
}

// FormatMoney renders a balance in whole coins, negative amounts in
// parentheses. Trailing fractional zeros are trimmed.
func FormatMoney(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	whole := amount / Coin
	frac := amount % Coin
	var b strings.Builder
	if neg {
		b.WriteByte('(')
	}
	fmt.Fprintf(&b, "%d", whole)
	if frac != 0 {
		s := fmt.Sprintf("%04d", frac)
		s = strings.TrimRight(s, "0")
		b.WriteByte('.')
		b.WriteString(s)
	}
	if neg {
		b.WriteByte(')')
	}
	return b.String()
}

// FormatMoneyTicker is FormatMoney with the currency symbol appended.
func (p *Params) FormatMoneyTicker(amount int64) string {
	return FormatMoney(amount) + " " + p.Ticker
}
