package types

import (
	"fmt"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Params configure the module's built-in directory and role table.
type Params struct {
	ApprovedAssets   []string  `json:"approved_assets"`
	Roles            RoleTable `json:"roles"`
	SnapshotInterval int64     `json:"snapshot_interval"` // blocks between value snapshots, 0 disables
}

// DefaultParams returns the default module parameters
func DefaultParams() Params {
	return Params{
		ApprovedAssets:   []string{},
		Roles:            RoleTable{},
		SnapshotInterval: 100,
	}
}

func (p Params) Validate() error {
	for _, denom := range p.ApprovedAssets {
		if err := sdk.ValidateDenom(denom); err != nil {
			return fmt.Errorf("approved asset: %w", err)
		}
	}
	if p.SnapshotInterval < 0 {
		return fmt.Errorf("negative snapshot interval %d", p.SnapshotInterval)
	}
	return p.Roles.Validate()
}

// ShareBalance is a holder's share balance in a pool
type ShareBalance struct {
	PoolID string   `json:"pool_id"`
	Holder string   `json:"holder"`
	Amount math.Int `json:"amount"`
}

// GenesisState is the termpool module's genesis state
type GenesisState struct {
	Params  Params         `json:"params"`
	Pools   []Pool         `json:"pools"`
	Holders []UserPoolData `json:"holders"`
	Shares  []ShareBalance `json:"shares"`
}

// DefaultGenesis returns the default genesis state
func DefaultGenesis() *GenesisState {
	return &GenesisState{
		Params:  DefaultParams(),
		Pools:   []Pool{},
		Holders: []UserPoolData{},
		Shares:  []ShareBalance{},
	}
}

// Validate checks params, pool terms and holder references.
func (gs GenesisState) Validate() error {
	if err := gs.Params.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidGenesis, err)
	}
	pools := make(map[string]bool, len(gs.Pools))
	for i := range gs.Pools {
		p := &gs.Pools[i]
		if pools[p.Config.PoolID] {
			return fmt.Errorf("%w: duplicate pool %s", ErrInvalidGenesis, p.Config.PoolID)
		}
		if p.State.PoolID != p.Config.PoolID {
			return fmt.Errorf("%w: state of pool %s is keyed %s", ErrInvalidGenesis, p.Config.PoolID, p.State.PoolID)
		}
		if err := p.Config.Validate(); err != nil {
			return err
		}
		if err := p.State.Validate(&p.Config); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidGenesis, err)
		}
		pools[p.Config.PoolID] = true
	}
	for _, h := range gs.Holders {
		if !pools[h.PoolID] {
			return fmt.Errorf("%w: holder %s in unknown pool %s", ErrInvalidGenesis, h.Holder, h.PoolID)
		}
	}
	for _, s := range gs.Shares {
		if !pools[s.PoolID] {
			return fmt.Errorf("%w: shares in unknown pool %s", ErrInvalidGenesis, s.PoolID)
		}
		if s.Amount.IsNil() || s.Amount.IsNegative() {
			return fmt.Errorf("%w: invalid share balance for %s", ErrInvalidGenesis, s.Holder)
		}
	}
	return nil
}
