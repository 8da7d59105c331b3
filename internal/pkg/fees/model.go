package fees

import (
	"github.com/holiman/uint256"
	"github.com/vreid/wager/internal/pkg/asset"
)

// Entry prices match creation in one asset.
type Entry struct {
	Asset   asset.Asset  `json:"asset"`
	Enabled bool         `json:"enabled"`
	Fee     *uint256.Int `json:"-"`
}
