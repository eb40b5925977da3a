// Package relay implements the chat relay core: a registry of live
// connections grouped into rooms and a hub that normalizes inbound chat
// events and fans them out to every member of the sender's room.
//
// The package knows nothing about WebSockets or HTTP. Transports hand the
// hub a Connection on connect, forward raw chatMessage payloads, and report
// the disconnect; everything else happens on the hub's single event loop.
package relay
