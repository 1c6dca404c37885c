package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsInitialization(t *testing.T) {
	assert.NotNil(t, RelationshipsImportedTotal)
	assert.NotNil(t, RelationshipsDroppedTotal)
	assert.NotNil(t, BatchesFlushedTotal)
	assert.NotNil(t, FlushDurationSeconds)
	assert.NotNil(t, RadixSortDurationSeconds)
	assert.NotNil(t, IDMapNodes)
	assert.NotNil(t, TrackedMemoryBytes)
	assert.NotNil(t, ArenaPagesTotal)
	assert.NotNil(t, PageLockWaitDuration)
}

func TestDroppedCounterByReason(t *testing.T) {
	before := testutil.ToFloat64(RelationshipsDroppedTotal.WithLabelValues("unresolved"))
	RelationshipsDroppedTotal.WithLabelValues("unresolved").Add(2)
	after := testutil.ToFloat64(RelationshipsDroppedTotal.WithLabelValues("unresolved"))
	assert.Equal(t, before+2, after)
}
