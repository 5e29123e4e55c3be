// Package topology maps the network around the scanner: it sweeps the
// target network with nmap, follows traceroute paths, and produces the
// nodes/edges document the visualization client polls.
package topology

import (
	"encoding/json"
	"sort"
	"time"
)

// Node types.
const (
	NodeGateway = "gateway"
	NodeRouter  = "router"
	NodeHost    = "host"
	NodeScanner = "scanner"
)

// Edge types.
const (
	EdgeRoute = "route"
)

// Node is a device in the topology graph.
type Node struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Address  string `json:"address"`
	Hostname string `json:"hostname,omitempty"`
	SysName  string `json:"sys_name,omitempty"`
	SysDescr string `json:"sys_descr,omitempty"`
}

// Edge is a directed link between two nodes.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// Stats summarizes a mapping run.
type Stats struct {
	HostsUp    int `json:"hosts_up"`
	HostsTotal int `json:"hosts_total"`
	Routers    int `json:"routers"`
}

// Document is the stored topology artifact.
type Document struct {
	GeneratedAt time.Time `json:"generated_at"`
	Network     string    `json:"network"`
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
	Stats       Stats     `json:"stats"`
}

// graph accumulates nodes and edges during a mapping run, deduplicating
// by node id and edge endpoints.
type graph struct {
	nodes map[string]*Node
	edges map[[2]string]Edge
}

func newGraph() *graph {
	return &graph{
		nodes: make(map[string]*Node),
		edges: make(map[[2]string]Edge),
	}
}

// addNode inserts a node or upgrades an existing one. A node already
// recorded as a plain host is promoted when seen again as a router or
// gateway; the reverse never happens.
func (g *graph) addNode(node Node) *Node {
	existing, ok := g.nodes[node.ID]
	if !ok {
		copied := node
		g.nodes[node.ID] = &copied
		return &copied
	}
	if rank(node.Type) > rank(existing.Type) {
		existing.Type = node.Type
	}
	if existing.Hostname == "" {
		existing.Hostname = node.Hostname
	}
	return existing
}

func rank(nodeType string) int {
	switch nodeType {
	case NodeGateway:
		return 3
	case NodeRouter:
		return 2
	case NodeScanner:
		return 1
	default:
		return 0
	}
}

func (g *graph) addEdge(source, target, edgeType string) {
	if source == target {
		return
	}
	g.edges[[2]string{source, target}] = Edge{Source: source, Target: target, Type: edgeType}
}

// document freezes the graph into a deterministic artifact: nodes and
// edges are sorted so identical runs produce identical documents.
func (g *graph) document(network string, generatedAt time.Time) *Document {
	doc := &Document{
		GeneratedAt: generatedAt,
		Network:     network,
		Nodes:       make([]Node, 0, len(g.nodes)),
		Edges:       make([]Edge, 0, len(g.edges)),
	}

	for _, node := range g.nodes {
		doc.Nodes = append(doc.Nodes, *node)
		switch node.Type {
		case NodeRouter, NodeGateway:
			doc.Stats.Routers++
		}
	}
	sort.Slice(doc.Nodes, func(i, j int) bool {
		return doc.Nodes[i].ID < doc.Nodes[j].ID
	})

	for _, edge := range g.edges {
		doc.Edges = append(doc.Edges, edge)
	}
	sort.Slice(doc.Edges, func(i, j int) bool {
		if doc.Edges[i].Source != doc.Edges[j].Source {
			return doc.Edges[i].Source < doc.Edges[j].Source
		}
		return doc.Edges[i].Target < doc.Edges[j].Target
	})

	return doc
}

// Marshal renders the document as indented JSON for the result store.
func (d *Document) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// UnmarshalDocument parses a stored topology artifact.
func UnmarshalDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
