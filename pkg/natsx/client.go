package natsx

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// Connect dials the NATS server at url. Without options the connection is named after the
// client and uses compression.
func Connect(url, name string, opts ...nats.Option) (*nats.Conn, error) {
	if len(opts) == 0 {
		opts = append(opts, nats.Name(name), nats.Compression(true))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return nc, nil
}
