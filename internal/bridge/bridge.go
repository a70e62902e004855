// Package bridge adapts external chat sources (a Satori-style chat bus,
// Bilibili live rooms) into the core pipeline. Each adapter speaks a
// generic JSON message-event envelope rather than the source's native
// wire protocol — reproducing Satori's or Bilibili's actual framing is
// out of scope; the core only ever consumes normalized
// (channel, sender_id, sender_name, elements) tuples, so any adapter
// that produces those is a legitimate bridge.
package bridge

import "time"

// reconnectDelay is the fixed backoff between a dropped bridge
// connection and the next reconnect attempt.
const reconnectDelay = 5 * time.Second
