// Package websocket streams analysis run progress to browser clients.
//
// A Hub owns the connected clients and fans out messages; it implements
// pipeline.Observer so it can be passed straight to a pipeline. Each Client
// runs a read pump and a write pump over a Connection, and Handler performs
// the HTTP upgrade with an origin allow-list.
package websocket
