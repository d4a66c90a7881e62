// Package friends manages the providers a node knows how to reach.
//
// A friend is another provider, identified by the permalink of its identity,
// that exposes an inbox endpoint over HTTP. When a recipient has no live
// session with this node, envelopes addressed to it can still be pulled
// through to the friend that hosts it.
//
// Upon starting up, a node looks for a friends.json file in its data
// directory. The file is a JSON list of friends, meant to be edited by human
// operators. A missing file is an empty list.
package friends
