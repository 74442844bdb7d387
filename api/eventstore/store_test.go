package eventstore

import (
	"context"
	"io/fs"
	"os"
	"testing"
	"time"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/termvault/api/types"
)

func TestFilterQuery(t *testing.T) {
	sql, args := Filter{}.query()
	assert.Equal(t, `SELECT height, block_time, event_type, pool_id, ledger_id, attributes FROM pool_events ORDER BY id DESC LIMIT $1`, sql)
	assert.Equal(t, []interface{}{maxQueryLimit}, args)

	sql, args = Filter{PoolID: "pool-1", Type: "deposit", Limit: 20}.query()
	assert.Contains(t, sql, "WHERE pool_id = $1 AND event_type = $2 ORDER BY id DESC LIMIT $3")
	assert.Equal(t, []interface{}{"pool-1", "deposit", 20}, args)

	_, args = Filter{LedgerID: "pool-1", Limit: 5000}.query()
	assert.Equal(t, []interface{}{"pool-1", maxQueryLimit}, args)
}

func TestInsertArgs(t *testing.T) {
	args, err := insertArgs(&types.Event{Type: "coupon_claimed", PoolID: "p", Height: 3, Time: 99})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(3), int64(99), "coupon_claimed", "p", "", []byte("{}")}, args)
}

// TestStoreRoundTrip runs against a live database named by TERMVAULT_TEST_DSN
func TestStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("TERMVAULT_TEST_DSN")
	if dsn == "" {
		t.Skip("TERMVAULT_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn, log.NewNopLogger())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.pool.Exec(ctx, `TRUNCATE pool_events`)
	require.NoError(t, err)

	poolID := "roundtrip-" + time.Now().Format("150405.000")
	require.NoError(t, store.Insert(ctx, []types.Event{
		{Type: "pool_created", PoolID: poolID, Height: 1, Time: 10, Attributes: map[string]string{"pool_id": poolID}},
		{Type: "deposit", PoolID: poolID, Height: 2, Time: 20, Attributes: map[string]string{"sender": "cosmos1a"}},
		{Type: "transfer_proposed", LedgerID: "other", Height: 2, Time: 20},
	}))

	events, err := store.Events(ctx, Filter{PoolID: poolID})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "deposit", events[0].Type)
	assert.Equal(t, "cosmos1a", events[0].Attributes["sender"])
	assert.Equal(t, int64(1), events[1].Height)

	// Migrations are idempotent
	sub, err := fs.Sub(migrations, "migrations")
	require.NoError(t, err)
	require.NoError(t, migrate(ctx, store.pool, sub))
}
