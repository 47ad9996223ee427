package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDefaultIsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	assert.Same(t, a, b)
}

func TestCountersIncrement(t *testing.T) {
	m := Default()

	before := testutil.ToFloat64(m.Sends.WithLabelValues("empty"))
	m.Sends.WithLabelValues("empty").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(m.Sends.WithLabelValues("empty")))

	dropped := testutil.ToFloat64(m.FragmentsDropped)
	m.FragmentsDropped.Add(2)
	assert.Equal(t, dropped+2, testutil.ToFloat64(m.FragmentsDropped))
}
