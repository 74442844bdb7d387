package types

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
)

// Role is a privileged capability checked through Authorization.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleAgent     Role = "AGENT"
	RoleOperator  Role = "OPERATOR"
	RoleEmergency Role = "EMERGENCY"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAgent, RoleOperator, RoleEmergency:
		return true
	}
	return false
}

// Roles allowed to drive each privileged operation.
var (
	CloseEpochRoles       = []Role{RoleAdmin, RoleOperator}
	ForceCloseRoles       = []Role{RoleAdmin, RoleEmergency}
	InvestmentRoles       = []Role{RoleAgent, RoleOperator}
	MaturityRoles         = []Role{RoleAgent, RoleOperator}
	CouponPaymentRoles    = []Role{RoleAgent, RoleOperator}
	CouponDistributeRoles = []Role{RoleOperator, RoleAdmin}
	EmergencyRoles        = []Role{RoleAdmin, RoleEmergency}
	SlippageRoles         = []Role{RoleAdmin}
	LiquidityRoles        = []Role{RoleAgent, RoleOperator}
	PoolAdminRoles        = []Role{RoleAdmin}
)

// RoleTable maps each role to its member addresses.
type RoleTable map[Role][]string

// HasRole reports whether addr holds role.
func (t RoleTable) HasRole(role Role, addr string) bool {
	return lo.Contains(t[role], addr)
}

// Grant adds addr to role if missing.
func (t RoleTable) Grant(role Role, addr string) {
	if !t.HasRole(role, addr) {
		t[role] = append(t[role], addr)
		sort.Strings(t[role])
	}
}

// Revoke removes addr from role.
func (t RoleTable) Revoke(role Role, addr string) {
	t[role] = lo.Without(t[role], addr)
}

func (t RoleTable) Validate() error {
	for role, members := range t {
		if !role.Valid() {
			return fmt.Errorf("unknown role %q", role)
		}
		if len(lo.Uniq(members)) != len(members) {
			return fmt.Errorf("duplicate members in role %s", role)
		}
		for _, m := range members {
			if m == "" {
				return fmt.Errorf("empty member in role %s", role)
			}
		}
	}
	return nil
}
