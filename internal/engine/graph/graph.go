// Package graph routes offline over a road graph serialized with encoding/gob.
package graph

import (
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"
)

// Node is a graph vertex.
type Node struct {
	ID        int64
	Latitude  float64
	Longitude float64
}

// Coordinate returns the node position.
func (n *Node) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: n.Latitude, Lon: n.Longitude}
}

// Edge is a directed connection between two nodes.
type Edge struct {
	FromID     int64
	ToID       int64
	Distance   float64 // meters
	TravelTime float64 // seconds; zero means derive from speed
}

// Graph is a directed road graph.
type Graph struct {
	Nodes map[int64]*Node
	Edges map[int64][]*Edge
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		Nodes: make(map[int64]*Node),
		Edges: make(map[int64][]*Edge),
	}
}

// AddNode inserts or replaces a node.
func (g *Graph) AddNode(id int64, lat, lon float64) {
	g.Nodes[id] = &Node{ID: id, Latitude: lat, Longitude: lon}
}

// AddEdge adds a directed edge. A non-positive distance is computed from the
// endpoints.
func (g *Graph) AddEdge(from, to int64, distance, travelTime float64) error {
	a, ok := g.Nodes[from]
	if !ok {
		return fmt.Errorf("unknown node %d", from)
	}
	b, ok := g.Nodes[to]
	if !ok {
		return fmt.Errorf("unknown node %d", to)
	}
	if distance <= 0 {
		distance = geo.Distance(a.Coordinate(), b.Coordinate())
	}
	g.Edges[from] = append(g.Edges[from], &Edge{FromID: from, ToID: to, Distance: distance, TravelTime: travelTime})
	return nil
}

// Nearest returns the node closest to c and its distance in meters.
func (g *Graph) Nearest(c geo.Coordinate) (*Node, float64) {
	var nearest *Node
	minDistance := math.Inf(1)
	for _, n := range g.Nodes {
		if d := geo.Distance(c, n.Coordinate()); d < minDistance {
			minDistance = d
			nearest = n
		}
	}
	return nearest, minDistance
}

// Encode writes the graph in gob format.
func (g *Graph) Encode(w io.Writer) error {
	return gob.NewEncoder(w).Encode(g)
}

// Decode reads a gob-encoded graph.
func Decode(r io.Reader) (*Graph, error) {
	g := New()
	if err := gob.NewDecoder(r).Decode(g); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	if g.Edges == nil {
		g.Edges = make(map[int64][]*Edge)
	}
	return g, nil
}

// Load reads a gob-encoded graph file.
func Load(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}
