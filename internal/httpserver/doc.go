// Package httpserver provides the HTTP service of the shell: a gin router with
// the status, readiness and room endpoints, bound to a listener on which other
// services can mount their own handlers.
//
// Mounted handlers are consulted for every request the router has no route
// for, which lets the WebSocket transport attach to the running listener
// without rebuilding the router.
package httpserver
