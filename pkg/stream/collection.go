// Package stream provides a typed client for the OpenSea Stream API: it
// joins per-collection topics on the Phoenix socket and decodes the event
// payloads into their schema types.
package stream

import (
	"fmt"
	"strings"
)

// topicPrefix namespaces collection topics on the wire.
const topicPrefix = "collection:"

// Collection identifies a collection whose events can be subscribed to. The
// value is the collection slug; CollectionAll subscribes to every collection.
type Collection string

// CollectionAll matches events from all collections.
const CollectionAll Collection = "*"

// Topic returns the channel topic for this collection, e.g.
// "collection:wandernauts".
func (c Collection) Topic() string {
	return topicPrefix + string(c)
}

func (c Collection) String() string {
	return c.Topic()
}

// ParseTopic recovers the collection from a channel topic.
func ParseTopic(topic string) (Collection, error) {
	slug, ok := strings.CutPrefix(topic, topicPrefix)
	if !ok || slug == "" {
		return "", fmt.Errorf("expected topic of the form %sname, got %q", topicPrefix, topic)
	}
	return Collection(slug), nil
}

// Network selects which OpenSea websocket to connect to.
type Network string

const (
	// NetworkMainnet serves production chains (Ethereum, Polygon, Klaytn).
	NetworkMainnet Network = "mainnet"
	// NetworkTestnet serves test chains (Goerli, Mumbai, Baobab).
	NetworkTestnet Network = "testnet"
)

// EndpointURL returns the websocket endpoint for the network.
func (n Network) EndpointURL() (string, error) {
	switch n {
	case NetworkMainnet:
		return "wss://stream.openseabeta.com/socket/websocket", nil
	case NetworkTestnet:
		return "wss://testnets-stream.openseabeta.com/socket/websocket", nil
	default:
		return "", fmt.Errorf("unknown network %q", string(n))
	}
}
