package kvstore_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secrepo/secrepo/kvstore"
	"github.com/secrepo/secrepo/types"
)

func TestInstrumentedOutcomes(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	store, err := kvstore.NewInstrumented(kvstore.NewMemory(), reg)
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "credentials/a1", types.Document{"id": "a1"}))

	_, err = store.Read(ctx, "credentials/a1")
	require.NoError(t, err)
	_, err = store.Read(ctx, "credentials/missing")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = store.List(ctx, "credentials")
	require.NoError(t, err)
	_, err = store.List(ctx, "empty_keyspace")
	assert.ErrorIs(t, err, types.ErrPathNotFound)

	require.NoError(t, store.Delete(ctx, "credentials/a1"))

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "secrepo_store_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var op, outcome string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "operation":
					op = l.GetValue()
				case "outcome":
					outcome = l.GetValue()
				}
			}
			counts[op+"/"+outcome] = m.GetCounter().GetValue()
		}
	}

	assert.Equal(t, 1.0, counts["write/ok"])
	assert.Equal(t, 1.0, counts["read/ok"])
	// Absent entries and paths count as misses, not errors.
	assert.Equal(t, 1.0, counts["read/miss"])
	assert.Equal(t, 1.0, counts["list/ok"])
	assert.Equal(t, 1.0, counts["list/miss"])
	assert.Equal(t, 1.0, counts["delete/ok"])
}

func TestInstrumentedLatencyHistogram(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	store, err := kvstore.NewInstrumented(kvstore.NewMemory(), reg)
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "credentials/a1", types.Document{"id": "a1"}))
	_, err = store.Read(ctx, "credentials/a1")
	require.NoError(t, err)

	n, err := promtestutil.GatherAndCount(reg, "secrepo_store_operation_duration_seconds")
	require.NoError(t, err)
	// One histogram series per touched operation.
	assert.Equal(t, 2, n)
}

func TestInstrumentedDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := kvstore.NewInstrumented(kvstore.NewMemory(), reg)
	require.NoError(t, err)
	_, err = kvstore.NewInstrumented(kvstore.NewMemory(), reg)
	assert.Error(t, err, "registering the same collectors twice must fail")
}
