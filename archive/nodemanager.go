// Package archive implements the auto-scaling strategy spec §4.9
// describes: once a ledger's unarchived block prefix crosses
// TRIGGER_THRESHOLD, a batch of the oldest blocks migrates to a storage
// node, creating a new one when the current one is full.
package archive

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dftledger/core"
	"dftledger/storagenode"
)

// NodeID identifies one storage node. In a real host this would be a
// canister/process id; here it is whatever the NodeManager implementation
// assigns.
type NodeID string

// InstallArgs is the payload handed to InstallNode: the token this node
// archives for and its first range of blocks.
type InstallArgs struct {
	TokenID     core.Principal
	StartHeight uint64
	Blocks      []core.EncodedBlock
}

// NodeStatus reports a node's current occupancy, used to decide whether
// it still has room for another batch before a new one is created.
type NodeStatus struct {
	UsedBytes     int64
	CapacityBytes int64
}

// HasRoom reports whether addBytes more would still fit within capacity.
func (s NodeStatus) HasRoom(addBytes int64) bool {
	return s.CapacityBytes <= 0 || s.UsedBytes+addBytes < s.CapacityBytes
}

// NodeManager is the capability interface over the host's
// create_canister/install_canister/canister_status calls — a test double
// in unit tests, DefaultNodeManager for single-process embeddings, and a
// real host-specific adapter in production.
type NodeManager interface {
	CreateNode(ctx context.Context) (NodeID, error)
	InstallNode(ctx context.Context, id NodeID, args InstallArgs) error
	NodeStatus(ctx context.Context, id NodeID) (NodeStatus, error)
}

// StorageClient is the capability interface over a storage node's
// batch_append entry point, kept separate from NodeManager because a real
// host routes node-lifecycle calls (management canister) and
// data-plane calls (the node itself) through entirely different clients.
type StorageClient interface {
	BatchAppend(ctx context.Context, id NodeID, blocks []core.EncodedBlock) error
}

// DefaultNodeManager is the in-memory stand-in for a real host: it keeps
// storagenode.Node values directly in the process instead of spawning
// canisters/containers. It implements both NodeManager and StorageClient.
type DefaultNodeManager struct {
	mu        sync.RWMutex
	nodes     map[NodeID]*storagenode.Node
	maxBytes  int64
	cacheSize int
}

// NewDefaultNodeManager returns a manager whose nodes enforce maxBytes
// each and cache up to cacheSize decoded blocks.
func NewDefaultNodeManager(maxBytes int64, cacheSize int) *DefaultNodeManager {
	return &DefaultNodeManager{
		nodes:     make(map[NodeID]*storagenode.Node),
		maxBytes:  maxBytes,
		cacheSize: cacheSize,
	}
}

// CreateNode synthesizes a fresh node id with google/uuid, standing in
// for the host's create_canister call, and registers an empty node under it.
func (m *DefaultNodeManager) CreateNode(ctx context.Context) (NodeID, error) {
	id := NodeID(uuid.NewString())

	m.mu.Lock()
	defer m.mu.Unlock()
	node, err := storagenode.New(string(id), nil, m.maxBytes, m.cacheSize)
	if err != nil {
		return "", fmt.Errorf("create storage node: %w", err)
	}
	m.nodes[id] = node
	logrus.WithField("node", id).Info("storage node created")
	return id, nil
}

// InstallNode seeds a created-but-empty node with its first range of
// blocks, standing in for the host's install_canister call.
func (m *DefaultNodeManager) InstallNode(ctx context.Context, id NodeID, args InstallArgs) error {
	node, ok := m.nodeByID(id)
	if !ok {
		return fmt.Errorf("unknown node %s", id)
	}
	node.TokenID = args.TokenID
	return node.Init(args.StartHeight, args.Blocks)
}

// NodeStatus reports occupancy, standing in for the host's
// canister_status call.
func (m *DefaultNodeManager) NodeStatus(ctx context.Context, id NodeID) (NodeStatus, error) {
	node, ok := m.nodeByID(id)
	if !ok {
		return NodeStatus{}, fmt.Errorf("unknown node %s", id)
	}
	info := node.StorageInfo()
	return NodeStatus{UsedBytes: info.TotalBytes, CapacityBytes: info.MaxBytes}, nil
}

// BatchAppend ships a further prefix of blocks to an already-installed
// node.
func (m *DefaultNodeManager) BatchAppend(ctx context.Context, id NodeID, blocks []core.EncodedBlock) error {
	node, ok := m.nodeByID(id)
	if !ok {
		return fmt.Errorf("unknown node %s", id)
	}
	return node.BatchAppend(blocks)
}

// Node exposes the underlying storagenode.Node for queries (core/query.go
// callers forwarding BlockByHeight/BlocksByQuery to the node an
// ArchiveRange points at).
func (m *DefaultNodeManager) Node(id NodeID) (*storagenode.Node, bool) {
	return m.nodeByID(id)
}

func (m *DefaultNodeManager) nodeByID(id NodeID) (*storagenode.Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	return n, ok
}
