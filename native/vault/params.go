package vault

// Params captures the runtime configuration for the vault module.
type Params struct {
	// AdminAccount is the only caller permitted to run administrative
	// operations (status updates, collateral management, proxy voting).
	AdminAccount string `toml:"AdminAccount"`
	// VaultAccount holds deposited collateral and escrowed claim tokens.
	VaultAccount string `toml:"VaultAccount"`
	// TokenContract is the issuer contract for claim tokens.
	TokenContract string `toml:"TokenContract"`
	// IncomeEpochSeconds is the accrual period; elapsed time scales the
	// income ratio linearly up to one full basis application.
	IncomeEpochSeconds int64 `toml:"IncomeEpochSeconds"`
	// LockDurationSeconds is how long a withdrawal stays locked before it
	// becomes settleable.
	LockDurationSeconds int64 `toml:"LockDurationSeconds"`
	// ClaimMaxSupply bounds the claim-token circulation created per
	// collateral, in whole units before precision scaling.
	ClaimMaxSupply int64 `toml:"ClaimMaxSupply"`
}

const (
	defaultIncomeEpochSeconds  = 600
	defaultLockDurationSeconds = 5 * 24 * 60 * 60
	defaultClaimMaxSupply      = 1_000_000_000
)

// EnsureDefaults populates zero-valued fields with protocol defaults.
func (p *Params) EnsureDefaults() {
	if p.AdminAccount == "" {
		p.AdminAccount = "admin.vault"
	}
	if p.VaultAccount == "" {
		p.VaultAccount = "vault"
	}
	if p.TokenContract == "" {
		p.TokenContract = "stoken"
	}
	if p.IncomeEpochSeconds <= 0 {
		p.IncomeEpochSeconds = defaultIncomeEpochSeconds
	}
	if p.LockDurationSeconds <= 0 {
		p.LockDurationSeconds = defaultLockDurationSeconds
	}
	if p.ClaimMaxSupply <= 0 {
		p.ClaimMaxSupply = defaultClaimMaxSupply
	}
}
