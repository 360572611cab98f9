// Package client is a sync protocol client.
//
// A Client owns one connection and sends batches of operations with
// the configured credentials. Pipeline writes several batches before
// reading their responses; the server answers them in order.
//
//	c, err := client.Dial(ctx, "localhost:7357", client.Config{Login: "alice", Password: "secret"})
//	...
//	items, err := c.List(ctx, "", 0)
package client
