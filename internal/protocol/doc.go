// Package protocol is the JSON wire catalogue shared by the main and breakout
// channels. Inbound frames decode into a closed set of Request variants;
// outbound messages are plain structs tagged with their `type`.
package protocol
