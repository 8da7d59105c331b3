package fees_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/wager/internal/pkg/access"
	"github.com/vreid/wager/internal/pkg/asset"
	"github.com/vreid/wager/internal/pkg/chain"
	wcommon "github.com/vreid/wager/internal/pkg/common"
	"github.com/vreid/wager/internal/pkg/fees"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	tokenX   = asset.Token(common.HexToAddress("0x0000000000000000000000000000000000000f01"))
)

func newRegistry(t *testing.T) *fees.Registry {
	t.Helper()

	rt := chain.New(chain.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	emitter := common.HexToAddress("0xfac")

	roles := access.New(rt, emitter)
	require.NoError(t, roles.Initialize(context.Background(), admin))

	return fees.New(rt, roles, emitter)
}

func TestUnregisteredAssetNotChargeable(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)

	_, err := r.FeeOf(asset.Native())
	require.ErrorIs(t, err, wcommon.ErrAssetNotChargeable)
}

func TestUpdateFeeTokenAdminOnly(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)

	err := r.UpdateFeeToken(context.Background(), stranger, tokenX, true, uint256.NewInt(1))
	require.ErrorIs(t, err, wcommon.ErrUnauthorized)

	_, err = r.FeeOf(tokenX)
	require.ErrorIs(t, err, wcommon.ErrAssetNotChargeable)
}

func TestFeeOfHonoursEnabledFlag(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newRegistry(t)

	require.NoError(t, r.UpdateFeeToken(ctx, admin, tokenX, true, uint256.NewInt(7)))

	fee, err := r.FeeOf(tokenX)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), fee.Uint64())

	require.NoError(t, r.UpdateFeeToken(ctx, admin, tokenX, false, uint256.NewInt(7)))

	_, err = r.FeeOf(tokenX)
	require.ErrorIs(t, err, wcommon.ErrAssetNotChargeable)

	entries := r.Entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Enabled)
}

func TestZeroFeeIsChargeable(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)

	require.NoError(t, r.UpdateFeeToken(context.Background(), admin, asset.Native(), true, nil))

	fee, err := r.FeeOf(asset.Native())
	require.NoError(t, err)
	assert.True(t, fee.IsZero())
}

func TestEntriesSorted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newRegistry(t)

	require.NoError(t, r.UpdateFeeToken(ctx, admin, tokenX, true, uint256.NewInt(2)))
	require.NoError(t, r.UpdateFeeToken(ctx, admin, asset.Native(), true, uint256.NewInt(1)))

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Asset.IsNative())
	assert.Equal(t, tokenX, entries[1].Asset)
}
