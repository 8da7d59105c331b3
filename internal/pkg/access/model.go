package access

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Role is a 32-byte role identifier.
type Role common.Hash

var (
	// RootAdminRole administers itself and AdminRole.
	RootAdminRole = Role{}
	// AdminRole administers UpgraderRole and gates fee configuration.
	AdminRole = Role(crypto.Keccak256Hash([]byte("ADMIN_ROLE")))
	// UpgraderRole gates implementation upgrades.
	UpgraderRole = Role(crypto.Keccak256Hash([]byte("UPGRADER_ROLE")))
)

var roleNames = map[Role]string{
	RootAdminRole: "ROOT_ADMIN",
	AdminRole:     "ADMIN",
	UpgraderRole:  "UPGRADER",
}

type membership struct {
	role    Role
	account common.Address
}
