package msg

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestNewCopiesPayload(t *testing.T) {
	payload := []byte(`[{"node":"N1","voltage":"1.0+0j"}]`)
	before := time.Now()
	m := New("state_estimation/results", payload)
	payload[0] = 'x'

	assert.Equal(t, m.Topic(), "state_estimation/results")
	assert.Equal(t, string(m.Payload()), `[{"node":"N1","voltage":"1.0+0j"}]`)
	assert.Assert(t, !m.Received().Before(before))
}
