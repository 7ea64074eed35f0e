package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe(2)

	Multi{LogEmitter{}, b}.Emit(Event{Type: Started, ExecutionID: "ex-1"})
	b.Emit(Event{Type: Completed, ExecutionID: "ex-1"})
	// buffer full, dropped
	b.Emit(Event{Type: Progress, ExecutionID: "ex-1"})

	assert.Equal(t, Started, (<-ch).Type)
	assert.Equal(t, Completed, (<-ch).Type)

	cancel()
	_, open := <-ch
	assert.False(t, open)
	cancel()
	b.Emit(Event{Type: Failed})
}
