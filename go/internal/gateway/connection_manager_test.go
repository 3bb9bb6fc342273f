package gateway

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/trierg/go/internal/store"
)

// Broadcasting must survive clients disconnecting mid-fanout: the dispatcher
// used to race the channel close in unregisterConnection and panic on a send
// to a closed channel.
func TestBroadcastDuringDisconnect(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())

	conns := make([]*Connection, 200)
	for i := range conns {
		conns[i] = &Connection{
			ID:      fmt.Sprintf("conn-%d", i),
			UserID:  "viewer",
			Send:    make(chan []byte, 256),
			Manager: cm,
		}
		cm.registerConnection(conns[i])
	}

	event, ok := snapshotEvent(store.Snapshot{Collection: store.CollectionPersons})
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			cm.handleBroadcast(event)
		}
	}()
	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}
	<-done

	assert.Equal(t, 0, cm.ConnectionCount())
}

// Unregistering twice happens when a slow-consumer close races the pump's
// own cleanup; the second call must be a no-op.
func TestUnregisterConnectionIdempotent(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	conn := &Connection{ID: "conn-0", Send: make(chan []byte, 1), Manager: cm}

	cm.registerConnection(conn)
	cm.unregisterConnection(conn)
	cm.unregisterConnection(conn)

	assert.Equal(t, 0, cm.ConnectionCount())
}
