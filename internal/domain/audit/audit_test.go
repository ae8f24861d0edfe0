package audit_test

import (
	"context"
	"testing"

	"github.com/cassiomorais/cardgateway/internal/domain/audit"
	"github.com/stretchr/testify/assert"
)

func TestFanout_DeliversToEverySink(t *testing.T) {
	a, b := &audit.Recorder{}, &audit.Recorder{}
	sink := audit.Fanout{a, nil, b}

	sink.Record(context.Background(), audit.Event{Reference: "ORDER-1", State: audit.StateBuilt})
	sink.Record(context.Background(), audit.Event{Reference: "ORDER-1", State: audit.StateSubmitted})

	want := []audit.State{audit.StateBuilt, audit.StateSubmitted}
	assert.Equal(t, want, a.States())
	assert.Equal(t, want, b.States())
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		audit.Discard.Record(context.Background(), audit.Event{})
	})
}
