/*
grid.go Immutable representation of the modeled grid topology. A Snapshot is loaded
once at startup and shared read-only by every estimation cycle.
*/

package grid

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// DefaultBaseMVA is the base apparent power used when a topology omits one.
const DefaultBaseMVA = 25.0

// nodeNamespace scopes the name-based IDs generated for nodes without an explicit ID.
var nodeNamespace = uuid.MustParse("6f1d9c3e-2b7a-4c1e-9f0b-5c2a8e4d7b10")

// NodeType is the power-flow role of a node.
type NodeType int

const (
	PQ NodeType = iota
	PV
	Slack
)

func (t NodeType) String() string {
	switch t {
	case Slack:
		return "SLACK"
	case PV:
		return "PV"
	case PQ:
		return "PQ"
	}
	return fmt.Sprintf("NodeType(%d)", int(t))
}

// MarshalJSON encodes the node type by name.
func (t NodeType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes SLACK, PQ or PV.
func (t *NodeType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch strings.ToUpper(s) {
	case "SLACK":
		*t = Slack
	case "PV":
		*t = PV
	case "PQ", "":
		*t = PQ
	default:
		return fmt.Errorf("unknown node type %q", s)
	}
	return nil
}

// Node is a single topology node.
type Node struct {
	ID         string   `json:"ID"`
	Name       string   `json:"Name"`
	Type       NodeType `json:"Type"`
	NominalKV  float64  `json:"NominalKV"`
	LoadMW     float64  `json:"LoadMW"`
	LoadMVAR   float64  `json:"LoadMVAR"`
	GenMW      float64  `json:"GenMW"`
	SetpointPU float64  `json:"SetpointPU"`
}

// Branch connects two nodes. Impedance is in ohms and shunt susceptance in
// siemens, both referred to the base voltage of the From node.
type Branch struct {
	From string  `json:"From"`
	To   string  `json:"To"`
	R    float64 `json:"R"`
	X    float64 `json:"X"`
	B    float64 `json:"B"`
}

// Topology is the on-disk description of a grid.
type Topology struct {
	Name     string   `json:"Name"`
	BaseMVA  float64  `json:"BaseMVA"`
	Nodes    []Node   `json:"Nodes"`
	Branches []Branch `json:"Branches"`
}

// Snapshot is the read-only grid model. It is never mutated after construction.
type Snapshot struct {
	name     string
	baseMVA  float64
	nodes    []Node
	index    map[string]int
	branches []Branch
}

// Load reads a JSON topology file and builds a Snapshot.
func Load(path string) (*Snapshot, error) {
	jsonTopology, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	topology := Topology{}
	if err := json.Unmarshal(jsonTopology, &topology); err != nil {
		return nil, fmt.Errorf("parse topology %s: %w", path, err)
	}
	return New(topology)
}

// New validates the topology and returns the Snapshot built from it.
func New(t Topology) (*Snapshot, error) {
	if len(t.Nodes) == 0 {
		return nil, errors.New("topology has no nodes")
	}

	baseMVA := t.BaseMVA
	if baseMVA == 0 {
		baseMVA = DefaultBaseMVA
	}
	if baseMVA < 0 {
		return nil, fmt.Errorf("base power %v must be positive", baseMVA)
	}

	nodes := make([]Node, len(t.Nodes))
	copy(nodes, t.Nodes)

	index := make(map[string]int, len(nodes))
	slacks := 0
	for i := range nodes {
		n := &nodes[i]
		if n.ID == "" {
			if n.Name == "" {
				return nil, fmt.Errorf("node %d has neither ID nor Name", i)
			}
			n.ID = uuid.NewSHA1(nodeNamespace, []byte(n.Name)).String()
		}
		if n.Name == "" {
			n.Name = n.ID
		}
		if _, exists := index[n.ID]; exists {
			return nil, fmt.Errorf("duplicate node ID %s", n.ID)
		}
		if n.NominalKV <= 0 {
			return nil, fmt.Errorf("node %s: nominal voltage must be positive", n.ID)
		}
		if n.SetpointPU == 0 {
			n.SetpointPU = 1.0
		}
		if n.Type == Slack {
			slacks++
		}
		index[n.ID] = i
	}
	if slacks != 1 {
		return nil, fmt.Errorf("topology must have exactly one SLACK node, found %d", slacks)
	}

	branches := make([]Branch, len(t.Branches))
	copy(branches, t.Branches)
	for _, b := range branches {
		if _, ok := index[b.From]; !ok {
			return nil, fmt.Errorf("branch %s-%s: unknown from node", b.From, b.To)
		}
		if _, ok := index[b.To]; !ok {
			return nil, fmt.Errorf("branch %s-%s: unknown to node", b.From, b.To)
		}
		if b.From == b.To {
			return nil, fmt.Errorf("branch %s-%s: self loop", b.From, b.To)
		}
		if b.R == 0 && b.X == 0 {
			return nil, fmt.Errorf("branch %s-%s: zero impedance", b.From, b.To)
		}
	}

	s := &Snapshot{
		name:     t.Name,
		baseMVA:  baseMVA,
		nodes:    nodes,
		index:    index,
		branches: branches,
	}

	g, err := buildGraph(s)
	if err != nil {
		return nil, err
	}
	if unreached := g.Unreachable(s.Slack().ID); len(unreached) > 0 {
		return nil, fmt.Errorf("topology is not connected, islanded nodes: %v", unreached)
	}

	return s, nil
}

// Name is a getter for the topology name
func (s *Snapshot) Name() string {
	return s.name
}

// BaseMVA is a getter for the system base apparent power
func (s *Snapshot) BaseMVA() float64 {
	return s.baseMVA
}

// Len returns the number of nodes.
func (s *Snapshot) Len() int {
	return len(s.nodes)
}

// Nodes returns the nodes in stable topology order.
func (s *Snapshot) Nodes() []Node {
	nodes := make([]Node, len(s.nodes))
	copy(nodes, s.nodes)
	return nodes
}

// Node looks up a node by ID.
func (s *Snapshot) Node(id string) (Node, bool) {
	i, ok := s.index[id]
	if !ok {
		return Node{}, false
	}
	return s.nodes[i], true
}

// Index returns the position of a node in topology order.
func (s *Snapshot) Index(id string) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

// Slack returns the reference node.
func (s *Snapshot) Slack() Node {
	for _, n := range s.nodes {
		if n.Type == Slack {
			return n
		}
	}
	return Node{}
}

// Branches returns the branch set.
func (s *Snapshot) Branches() []Branch {
	branches := make([]Branch, len(s.branches))
	copy(branches, s.branches)
	return branches
}

// BaseImpedance returns the impedance base in ohms at the node's nominal voltage.
func (s *Snapshot) BaseImpedance(id string) float64 {
	n, ok := s.Node(id)
	if !ok {
		return 0
	}
	return n.NominalKV * n.NominalKV / s.baseMVA
}
