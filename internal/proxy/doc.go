// Package proxy implements the forwarding HTTP proxy's connection
// lifecycle: the bounded-concurrency accept loop, the per-connection
// dispatcher, and one handler per protocol family (CONNECT, HTTP/1.x,
// HTTP/2 cleartext, WebSocket upgrade). Classification, authentication,
// wire formatting, and the bidirectional relay live in their own sibling
// packages and are composed here.
package proxy
