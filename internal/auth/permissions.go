package auth

// Built-in permission keys.
const (
	PermReadSelf   = "read:self"
	PermReadAny    = "read:any"
	PermUserCreate = "user:create"
	PermUserDelete = "user:delete"
	PermAuditRead  = "audit:read"

	PermLedgerDeposit  = "ledger.deposit"
	PermLedgerTransfer = "ledger.transfer"
)

// RoleUser is assigned to accounts registered without explicit roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var defaultRoles = map[string][]string{
	RoleUser: {PermReadSelf, PermLedgerDeposit, PermLedgerTransfer},
	RoleAdmin: {
		PermReadSelf, PermReadAny, PermUserCreate, PermUserDelete, PermAuditRead,
		PermLedgerDeposit, PermLedgerTransfer,
	},
}

// RolePermissions returns the static permission set of a role name.
// Unknown roles resolve to nothing.
func RolePermissions(role string) []string {
	return defaultRoles[role]
}
