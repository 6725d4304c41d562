package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNodeComputedIncrementsByLabel(t *testing.T) {
	before := testutil.ToFloat64(nodeComputations.WithLabelValues("stem", StatusOK))
	NodeComputed("stem", StatusOK)
	NodeComputed("stem", StatusOK)
	NodeComputed("stem", StatusError)

	assert.Equal(t, before+2, testutil.ToFloat64(nodeComputations.WithLabelValues("stem", StatusOK)))
}

func TestStoreOperationStatus(t *testing.T) {
	okBefore := testutil.ToFloat64(storeOperations.WithLabelValues("save", StatusOK))
	errBefore := testutil.ToFloat64(storeOperations.WithLabelValues("save", StatusError))

	StoreOperation("save", nil)
	StoreOperation("save", errors.New("disk full"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(storeOperations.WithLabelValues("save", StatusOK)))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(storeOperations.WithLabelValues("save", StatusError)))
}

func TestSessionsGauge(t *testing.T) {
	before := testutil.ToFloat64(liveSessions)
	SessionOpened()
	SessionOpened()
	SessionClosed()
	assert.Equal(t, before+1, testutil.ToFloat64(liveSessions))
}

func TestObservePassAndHistory(t *testing.T) {
	ObservePass(3 * time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(passDuration))

	before := testutil.ToFloat64(historySteps)
	HistoryStepCommitted()
	assert.Equal(t, before+1, testutil.ToFloat64(historySteps))
}
