package utils

import (
	"github.com/bwmarrin/snowflake"
)

// IDGenerator produces unique link IDs from a snowflake node.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator creates an ID generator for the given datacenter and worker.
// DatacenterID uses 5 bits (0-31), WorkerID uses 5 bits (0-31).
func NewIDGenerator(datacenterID, workerID int64) (*IDGenerator, error) {
	nodeID := (datacenterID << 5) | workerID
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &IDGenerator{node: node}, nil
}

// Next returns a new unique ID.
func (g *IDGenerator) Next() int64 {
	return g.node.Generate().Int64()
}
