// Package broadcast implements a node in an eventually consistent broadcast
// cluster.
//
// Clients submit values to any node, and each node gossips the values it
// knows to its neighbors in the cluster topology until every node knows
// every value. The transport may drop, delay or duplicate messages, so
// gossip is acknowledged and retried until the neighbor confirms receipt.
//
// Each node tracks which values each neighbor is known to have, so a gossip
// round only sends the delta of values the neighbor is missing. Once a
// neighbor has acknowledged every local value, gossip to that neighbor stops
// until new values arrive.
package broadcast
