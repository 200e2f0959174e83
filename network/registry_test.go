package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Asadullah378/MiniChain/wire"
)

func startRegistry(t *testing.T, id string) (*Registry, chan wire.Message) {
	t.Helper()
	inbox := make(chan wire.Message, 16)
	r := NewRegistry(quietLogger(), id, "127.0.0.1:0")
	r.OnMessage(func(_ *Peer, msg wire.Message) { inbox <- msg })
	require.NoError(t, r.Start())
	t.Cleanup(r.Stop)
	return r, inbox
}

func TestSendToDialsFresh(t *testing.T) {
	server, serverInbox := startRegistry(t, "server:0")
	client, _ := startRegistry(t, "client:0")

	hb := &wire.HeartbeatMsg{Type: wire.TypeHeartbeat, NodeID: "client:0", Height: 3}
	require.NoError(t, client.SendTo(server.Addr(), hb))

	select {
	case msg := <-serverInbox:
		got, ok := msg.(*wire.HeartbeatMsg)
		require.True(t, ok)
		require.Equal(t, uint64(3), got.Height)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestBroadcastReachesInboundAndOutbound(t *testing.T) {
	server, serverInbox := startRegistry(t, "server:0")
	client, clientInbox := startRegistry(t, "client:0")

	// Client dials server; server now has an inbound connection.
	require.NoError(t, client.SendTo(server.Addr(), &wire.HeartbeatMsg{Type: wire.TypeHeartbeat, NodeID: "client:0", Height: 1}))
	<-serverInbox

	// Server broadcast travels the inbound connection back to the client.
	server.Broadcast(&wire.HeartbeatMsg{Type: wire.TypeHeartbeat, NodeID: "server:0", Height: 2})
	select {
	case msg := <-clientInbox:
		require.Equal(t, uint64(2), msg.(*wire.HeartbeatMsg).Height)
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast not delivered")
	}

	// Client broadcast travels its outbound connection to the server.
	client.Broadcast(&wire.HeartbeatMsg{Type: wire.TypeHeartbeat, NodeID: "client:0", Height: 3})
	select {
	case msg := <-serverInbox:
		require.Equal(t, uint64(3), msg.(*wire.HeartbeatMsg).Height)
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast not delivered")
	}
}

func TestSendToMatchesFirstLabel(t *testing.T) {
	server, serverInbox := startRegistry(t, "server:0")
	client, _ := startRegistry(t, "client:0")

	// Prime a cached connection under the server's full address.
	require.NoError(t, client.SendTo(server.Addr(), &wire.HeartbeatMsg{Type: wire.TypeHeartbeat, NodeID: "client:0", Height: 1}))
	<-serverInbox

	// The bare first label of the cached identity resolves to the same
	// connection instead of dialing a fresh (and unresolvable) address.
	short := firstLabel(server.Addr())
	require.NoError(t, client.SendTo(short, &wire.HeartbeatMsg{Type: wire.TypeHeartbeat, NodeID: "client:0", Height: 2}))
	select {
	case msg := <-serverInbox:
		require.Equal(t, uint64(2), msg.(*wire.HeartbeatMsg).Height)
	case <-time.After(5 * time.Second):
		t.Fatal("short-name send not delivered")
	}
}

func TestPeersSnapshot(t *testing.T) {
	server, serverInbox := startRegistry(t, "server:0")
	client, _ := startRegistry(t, "client:0")

	require.NoError(t, client.SendTo(server.Addr(), &wire.HeartbeatMsg{Type: wire.TypeHeartbeat, NodeID: "client:0", Height: 1}))
	<-serverInbox

	require.Eventually(t, func() bool { return len(server.Peers()) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Len(t, client.Peers(), 1)
	require.False(t, client.Peers()[0].Inbound)
}
