package p2p

import "github.com/TorporOverload/DocChainValidator/internal/block"

// Message type tags, the fixed enumeration every frame's Type field must be
// one of; unknown tags are rejected at the boundary rather than dispatched.
const (
	TypeHello        = "HELLO"
	TypeWelcome      = "WELCOME"
	TypePing         = "PING"
	TypePong         = "PONG"
	TypeGetBlocks    = "GET_BLOCKS"
	TypeBlocks       = "BLOCKS"
	TypeNewBlock     = "NEW_BLOCK"
	TypeMiningStart  = "MINING_START"
	TypeMiningFinish = "MINING_FINISH"
)

// ProtocolVersion is advertised in HELLO and bumped on any wire-incompatible
// change to this package's message payloads.
const ProtocolVersion = 1

// ChunkSize is the number of blocks returned per BLOCKS response.
const ChunkSize = 50

// MaxBlocksPerResponse caps BLOCKS payload size regardless of how the
// request was framed, protecting against a malicious start value.
const MaxBlocksPerResponse = 1000

// MaxRewindDepth bounds how many single-block rewinds a sync session will
// perform before giving up on fork resolution.
const MaxRewindDepth = 2000

type helloPayload struct {
	PeerID          string `json:"peer_id"`
	ProtocolVersion int    `json:"protocol_version"`
	ChainHeight     int    `json:"chain_height"`
	LatestHash      string `json:"latest_hash"`
}

type welcomePayload struct {
	PeerID      string `json:"peer_id"`
	ChainHeight int    `json:"chain_height"`
	LatestHash  string `json:"latest_hash"`
}

type pingPongPayload struct {
	ChainHeight int    `json:"chain_height"`
	LatestHash  string `json:"latest_hash"`
}

type getBlocksPayload struct {
	Start int `json:"start"`
}

type blocksPayload struct {
	Blocks []*block.Block `json:"blocks"`
}

type newBlockPayload struct {
	Block *block.Block `json:"block"`
}

type emptyPayload struct{}
