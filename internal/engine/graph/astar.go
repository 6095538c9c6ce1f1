package graph

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/routemap"
)

type queueItem struct {
	nodeID   int64
	priority float64
	index    int
}

type priorityQueue []*queueItem

func (pq priorityQueue) Len() int           { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool { return pq[i].priority < pq[j].priority }
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x interface{}) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// Router snaps both endpoints to the nearest nodes and runs A* on travel time.
type Router struct {
	graph    *Graph
	speedMS  float64
	maxSpeed float64
	maxSnap  float64
}

// NewRouter creates a Router. speedMS converts distances to time for edges
// without a travel time and for the snapping legs. Endpoints farther than
// maxSnapM from any node are unroutable; zero disables the check.
func NewRouter(g *Graph, speedMS, maxSnapM float64) *Router {
	if speedMS <= 0 {
		speedMS = 1.4
	}
	r := &Router{graph: g, speedMS: speedMS, maxSpeed: speedMS, maxSnap: maxSnapM}
	for _, edges := range g.Edges {
		for _, e := range edges {
			if e.TravelTime > 0 && e.Distance/e.TravelTime > r.maxSpeed {
				r.maxSpeed = e.Distance / e.TravelTime
			}
		}
	}
	return r
}

func (r *Router) edgeTime(e *Edge) float64 {
	if e.TravelTime > 0 {
		return e.TravelTime
	}
	return e.Distance / r.speedMS
}

// heuristic is admissible: no edge is faster than maxSpeed.
func (r *Router) heuristic(a, b *Node) float64 {
	return geo.Distance(a.Coordinate(), b.Coordinate()) / r.maxSpeed
}

// Route implements engine.Router.
func (r *Router) Route(ctx context.Context, from, to geo.Coordinate) ([]routemap.Route, error) {
	start, startSnap := r.graph.Nearest(from)
	end, endSnap := r.graph.Nearest(to)
	if start == nil || end == nil {
		return nil, fmt.Errorf("%w: empty graph", routemap.ErrRouteNotFound)
	}
	if r.maxSnap > 0 && (startSnap > r.maxSnap || endSnap > r.maxSnap) {
		return nil, fmt.Errorf("%w: endpoint outside graph coverage", routemap.ErrRouteNotFound)
	}

	nodes, distance, travel, err := r.shortestPath(ctx, start, end)
	if err != nil {
		return nil, err
	}

	path := make([]geo.Coordinate, 0, len(nodes)+2)
	path = append(path, from)
	for _, id := range nodes {
		path = append(path, r.graph.Nodes[id].Coordinate())
	}
	path = append(path, to)

	snap := startSnap + endSnap
	return []routemap.Route{{
		Name: "graph",
		Summary: routemap.Totals{
			TotalDistance: distance + snap,
			TotalTime:     travel + snap/r.speedMS,
		},
		Path: path,
	}}, nil
}

func (r *Router) shortestPath(ctx context.Context, start, end *Node) ([]int64, float64, float64, error) {
	gScore := map[int64]float64{start.ID: 0}
	distance := map[int64]float64{start.ID: 0}
	previous := make(map[int64]int64)
	closed := make(map[int64]bool)

	open := &priorityQueue{}
	heap.Init(open)
	heap.Push(open, &queueItem{nodeID: start.ID, priority: r.heuristic(start, end)})

	for steps := 0; open.Len() > 0; steps++ {
		if steps%1024 == 0 && ctx.Err() != nil {
			return nil, 0, 0, ctx.Err()
		}

		current := heap.Pop(open).(*queueItem).nodeID
		if current == end.ID {
			return r.reconstruct(previous, start.ID, end.ID), distance[end.ID], gScore[end.ID], nil
		}
		if closed[current] {
			continue
		}
		closed[current] = true

		for _, e := range r.graph.Edges[current] {
			next, ok := r.graph.Nodes[e.ToID]
			if !ok || closed[e.ToID] {
				continue
			}
			tentative := gScore[current] + r.edgeTime(e)
			if old, seen := gScore[e.ToID]; seen && tentative >= old {
				continue
			}
			gScore[e.ToID] = tentative
			distance[e.ToID] = distance[current] + e.Distance
			previous[e.ToID] = current
			heap.Push(open, &queueItem{nodeID: e.ToID, priority: tentative + r.heuristic(next, end)})
		}
	}
	return nil, 0, 0, fmt.Errorf("%w: no path between nodes %d and %d", routemap.ErrRouteNotFound, start.ID, end.ID)
}

func (r *Router) reconstruct(previous map[int64]int64, startID, endID int64) []int64 {
	path := []int64{endID}
	for current := endID; current != startID; {
		current = previous[current]
		path = append(path, current)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
