package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"dftledger/core"
)

// Config collects the tunables Controller needs, mirroring
// core.LedgerConfig's archive fields so a caller can build one straight
// off the loaded ledger configuration.
type Config struct {
	TriggerThreshold int
	NumToArchive     int
	MaxNodeBytes     int64
	MaxMessageBytes  int
}

// Controller drives spec §4.9's six-step auto-scaling strategy against a
// single ledger's blockchain. It is stateless beyond the last node it
// shipped blocks to, so one Controller instance is shared across calls
// for a given token.
type Controller struct {
	cfg     Config
	nodes   NodeManager
	storage StorageClient

	lastNode    NodeID
	haveLast    bool
	installed   bool
	log         *logrus.Entry
	retryPolicy backoff.BackOff
}

// NewController wires a Controller against the given node-lifecycle and
// data-plane capabilities. nodes and storage are commonly the same
// *DefaultNodeManager value, kept as two parameters because a real host
// routes them through distinct clients.
func NewController(cfg Config, nodes NodeManager, storage StorageClient) *Controller {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 50 * time.Millisecond
	eb.MaxInterval = 1 * time.Second

	return &Controller{
		cfg:         cfg,
		nodes:       nodes,
		storage:     storage,
		log:         logrus.WithField("component", "archive"),
		retryPolicy: backoff.WithMaxRetries(eb, 4),
	}
}

// ExecAutoScalingStrategy implements spec §4.9: (1) check the unarchived
// prefix against TRIGGER_THRESHOLD, (2) take the single-flight lock,
// (3) pick up to NUM_TO_ARCHIVE of the oldest blocks and reject the
// batch outright if it exceeds MAX_MESSAGE_BYTES, (4) find a node with
// room or create one, (5) ship the batch in a single call, (6) commit
// the migration against the chain's archive index.
func (c *Controller) ExecAutoScalingStrategy(ctx context.Context, chain *core.Blockchain) error {
	if chain.UnarchivedLen() < c.cfg.TriggerThreshold {
		return nil
	}
	if !chain.TryAcquireArchiveLock() {
		c.log.Debug("archive already in progress, skipping")
		return nil
	}
	defer chain.ReleaseArchiveLock()

	n := c.cfg.NumToArchive
	if u := chain.UnarchivedLen(); n > u {
		n = u
	}
	startHeight, blocks := chain.PrefixForArchive(n)
	if len(blocks) == 0 {
		return nil
	}

	var totalBytes int64
	for _, b := range blocks {
		totalBytes += int64(b.Size())
	}
	if c.cfg.MaxMessageBytes > 0 && totalBytes > int64(c.cfg.MaxMessageBytes) {
		return core.NewError(core.CodeRequestTooLarge, "archive batch of %d bytes exceeds max message size %d", totalBytes, c.cfg.MaxMessageBytes)
	}

	nodeID, isNewNode, err := c.nodeForBatch(ctx, totalBytes)
	if err != nil {
		return core.WrapError(core.CodeStorageScalingFailed, err)
	}

	if isNewNode {
		// Record the node as soon as it exists, before attempting
		// install, so a failed install still leaves it eligible for
		// retry on the next call instead of being orphaned.
		c.lastNode = nodeID
		c.haveLast = true
		c.installed = false
	}
	if !c.installed {
		if err := c.nodes.InstallNode(ctx, nodeID, InstallArgs{TokenID: chain.TokenID(), StartHeight: startHeight, Blocks: nil}); err != nil {
			return core.WrapError(core.CodeStorageScalingFailed, fmt.Errorf("install node %s: %w", nodeID, err))
		}
		c.installed = true
	}

	if err := c.storage.BatchAppend(ctx, nodeID, blocks); err != nil {
		return core.WrapError(core.CodeMoveTxToScalingStorageFailed, fmt.Errorf("ship blocks to node %s: %w", nodeID, err))
	}

	chain.CommitArchive(string(nodeID), len(blocks))
	c.lastNode = nodeID
	c.haveLast = true

	c.log.WithFields(logrus.Fields{
		"node": nodeID, "count": len(blocks), "start_height": startHeight,
	}).Info("archived block range")
	return nil
}

// nodeForBatch returns a node with room for addBytes, creating one if
// the last-used node is full or none exists yet. CreateNode/NodeStatus
// are the two genuinely flaky outbound calls per spec §5, so both are
// wrapped in a short bounded retry; InstallNode/BatchAppend are not,
// since their failures must surface as distinct caller-visible codes
// rather than be retried transparently.
func (c *Controller) nodeForBatch(ctx context.Context, addBytes int64) (id NodeID, isNew bool, err error) {
	if c.haveLast {
		var status NodeStatus
		opErr := backoff.Retry(func() error {
			var e error
			status, e = c.nodes.NodeStatus(ctx, c.lastNode)
			return e
		}, c.retryPolicy)
		if opErr == nil && status.HasRoom(addBytes) {
			return c.lastNode, false, nil
		}
	}

	var created NodeID
	opErr := backoff.Retry(func() error {
		var e error
		created, e = c.nodes.CreateNode(ctx)
		return e
	}, c.retryPolicy)
	if opErr != nil {
		return "", false, fmt.Errorf("create node: %w", opErr)
	}
	return created, true, nil
}

