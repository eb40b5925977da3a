// Package server implements the HTTP and WebSocket transport for the chat relay.
//
// The implementation is organized into specialized files for configuration,
// origin checks, clients, routing, and HTTP handlers. Room membership and
// fan-out live in package relay; this package only adapts sockets to it.
package server
