package topology

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddNodePromotion(t *testing.T) {
	g := newGraph()

	g.addNode(Node{ID: "10.0.0.1", Type: NodeHost, Address: "10.0.0.1"})
	g.addNode(Node{ID: "10.0.0.1", Type: NodeGateway, Address: "10.0.0.1"})
	assert.Equal(t, NodeGateway, g.nodes["10.0.0.1"].Type, "host is promoted to gateway")

	// Promotion never goes backwards.
	g.addNode(Node{ID: "10.0.0.1", Type: NodeHost, Address: "10.0.0.1"})
	assert.Equal(t, NodeGateway, g.nodes["10.0.0.1"].Type)
}

func TestAddNodeFillsHostname(t *testing.T) {
	g := newGraph()

	g.addNode(Node{ID: "10.0.0.5", Type: NodeHost, Address: "10.0.0.5"})
	g.addNode(Node{ID: "10.0.0.5", Type: NodeHost, Address: "10.0.0.5", Hostname: "printer.lan"})
	assert.Equal(t, "printer.lan", g.nodes["10.0.0.5"].Hostname)

	// An existing hostname is not overwritten.
	g.addNode(Node{ID: "10.0.0.5", Type: NodeHost, Address: "10.0.0.5", Hostname: "other.lan"})
	assert.Equal(t, "printer.lan", g.nodes["10.0.0.5"].Hostname)
}

func TestAddEdge(t *testing.T) {
	g := newGraph()

	g.addEdge("a", "b", EdgeRoute)
	g.addEdge("a", "b", EdgeRoute)
	assert.Len(t, g.edges, 1, "duplicate edges collapse")

	g.addEdge("a", "a", EdgeRoute)
	assert.Len(t, g.edges, 1, "self loops are dropped")
}

func TestDocumentDeterministic(t *testing.T) {
	build := func() *Document {
		g := newGraph()
		g.addNode(Node{ID: "10.0.0.20", Type: NodeHost, Address: "10.0.0.20"})
		g.addNode(Node{ID: "10.0.0.1", Type: NodeGateway, Address: "10.0.0.1"})
		g.addNode(Node{ID: "10.0.0.10", Type: NodeRouter, Address: "10.0.0.10"})
		g.addEdge("10.0.0.1", "10.0.0.10", EdgeRoute)
		g.addEdge("10.0.0.10", "10.0.0.20", EdgeRoute)
		return g.document("10.0.0.0/24", time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))
	}

	first, err := build().Marshal()
	require.NoError(t, err)
	second, err := build().Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	doc := build()
	assert.Equal(t, "10.0.0.1", doc.Nodes[0].ID, "nodes sorted by id")
	assert.Equal(t, 2, doc.Stats.Routers, "gateway and router both count")
	assert.Equal(t, "10.0.0.0/24", doc.Network)
}

func TestUnmarshalDocument(t *testing.T) {
	g := newGraph()
	g.addNode(Node{ID: "10.0.0.1", Type: NodeGateway, Address: "10.0.0.1", SysName: "edge-gw"})
	doc := g.document("10.0.0.0/24", time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))

	data, err := doc.Marshal()
	require.NoError(t, err)

	parsed, err := UnmarshalDocument(data)
	require.NoError(t, err)
	assert.Equal(t, doc.Network, parsed.Network)
	require.Len(t, parsed.Nodes, 1)
	assert.Equal(t, "edge-gw", parsed.Nodes[0].SysName)

	_, err = UnmarshalDocument([]byte("{not json"))
	assert.Error(t, err)
}
