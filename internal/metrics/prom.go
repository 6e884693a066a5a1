package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// promDecodedTotal counts decoded messages by message kind
	promDecodedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xwire_messages_decoded_total",
		Help: "Total number of successfully decoded messages by kind",
	}, []string{"kind"})

	// promDecodeErrorsTotal counts messages that failed to decode
	promDecodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xwire_decode_errors_total",
		Help: "Total number of messages that failed to decode",
	})

	// promUnknownTotal counts messages skipped for unknown discriminants
	promUnknownTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xwire_unknown_messages_total",
		Help: "Total number of messages skipped for unknown opcodes or codes",
	})

	// promBytesScanned counts stream bytes consumed by the scanner
	promBytesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xwire_bytes_scanned_total",
		Help: "Total number of stream bytes consumed by the scanner",
	})
)
