package fees

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/vreid/wager/internal/pkg/access"
	"github.com/vreid/wager/internal/pkg/asset"
	"github.com/vreid/wager/internal/pkg/chain"
	wcommon "github.com/vreid/wager/internal/pkg/common"
)

// Registry is the whitelist of assets a match fee can be paid in.
type Registry struct {
	rt      *chain.Runtime
	roles   *access.Registry
	emitter common.Address

	entries map[asset.Asset]Entry
}

func New(rt *chain.Runtime, roles *access.Registry, emitter common.Address) *Registry {
	return &Registry{
		rt:      rt,
		roles:   roles,
		emitter: emitter,
		entries: map[asset.Asset]Entry{},
	}
}

// UpdateFeeToken upserts the entry for a; Admin only.
func (r *Registry) UpdateFeeToken(ctx context.Context, caller common.Address, a asset.Asset, enabled bool, fee *uint256.Int) error {
	return r.rt.Execute(ctx, func(ctx context.Context) error {
		err := r.roles.CheckRole(caller, access.AdminRole)
		if err != nil {
			return err
		}

		if fee == nil {
			fee = new(uint256.Int)
		}

		chain.Put(ctx, r.entries, a, Entry{Asset: a, Enabled: enabled, Fee: fee.Clone()})
		chain.Emit(ctx, chain.Event{
			Name:    "FeeTokenUpdated",
			Emitter: r.emitter,
			Attributes: map[string]string{
				"asset":   a.String(),
				"enabled": strconv.FormatBool(enabled),
				"fee":     fee.Dec(),
			},
		})

		return nil
	})
}

// FeeOf returns the fee charged in a, or ErrAssetNotChargeable when a is
// unregistered or disabled.
func (r *Registry) FeeOf(a asset.Asset) (*uint256.Int, error) {
	entry, ok := r.entries[a]
	if !ok || !entry.Enabled {
		return nil, fmt.Errorf("%w: %s", wcommon.ErrAssetNotChargeable, a)
	}

	return entry.Fee.Clone(), nil
}

// Entries lists every registered asset, enabled or not, natives first.
func (r *Registry) Entries() []Entry {
	result := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entry.Fee = entry.Fee.Clone()
		result = append(result, entry)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Asset.String() < result[j].Asset.String()
	})

	return result
}
