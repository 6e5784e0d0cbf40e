package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/conduit-lang/querykit/internal/orm/query"
)

func TestObserveCompile(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCompile("Invoice", nil, time.Millisecond)
	m.ObserveCompile("Invoice", query.Issues{
		{Code: query.CodeInvalidEnumValue},
		{Code: query.CodeInvalidEnumValue},
		{Code: query.CodeInvalidPage},
	}, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompilationsTotal.WithLabelValues("Invoice", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompilationsTotal.WithLabelValues("Invoice", "rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IssuesTotal.WithLabelValues("Invoice", "invalid_enum_value")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IssuesTotal.WithLabelValues("Invoice", "invalid_page")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CompileDuration))
}

func TestObserveExecute(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveExecute("LineItem", "cursor", time.Millisecond, nil)
	m.ObserveExecute("LineItem", "cursor", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("LineItem", "cursor", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("LineItem", "cursor", "error")))
}

func TestObserveRequest(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRequest("/resources/{resource}", 422, 2*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/resources/{resource}", "422")))
}

func TestImplementsObserver(t *testing.T) {
	var _ query.Observer = New(prometheus.NewRegistry())
}
