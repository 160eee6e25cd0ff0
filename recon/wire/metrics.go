package wire

import "github.com/spacemeshos/gluon/metrics"

const (
	subsystem = "wire"

	directionSent     = "sent"
	directionReceived = "received"
)

var messageBytes = metrics.NewCounter(
	"message_bytes_total",
	subsystem,
	"Framed message bytes by direction and message type",
	[]string{"direction", "type"},
)
