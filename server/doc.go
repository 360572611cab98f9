// Package server accepts sync connections over TCP and answers their
// requests.
//
// Each connection is read by its own goroutine, which frames packets
// with packet.Reader and queues up to Config.PipelineDepth of them.
// Requests are answered strictly in order: decode, locate the caller's
// store through an auth.Locator, apply the batch with engine.Engine,
// write the response. Failures in any of these steps produce an error
// response and the connection stays open.
//
// A framing error or an end of stream stops reading; requests already
// framed are still answered before the connection is closed.
//
// HealthHandler serves /health and /ready for load balancers.
package server
