// Package metrics tracks decode and scan counters. Counters are plain
// atomics so library paths never block; the Prometheus collectors in
// prom.go mirror the ones the tools expose over HTTP.
package metrics

import (
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	MessagesDecoded int64 `json:"messages_decoded"`
	DecodeErrors    int64 `json:"decode_errors"`
	UnknownMessages int64 `json:"unknown_messages"`
	BytesScanned    int64 `json:"bytes_scanned"`
	RecordsScanned  int64 `json:"records_scanned"`
	UpdatedUnix     int64 `json:"updated_unix"`
}

var (
	messagesDecoded atomic.Int64
	decodeErrors    atomic.Int64
	unknownMessages atomic.Int64
	bytesScanned    atomic.Int64
	recordsScanned  atomic.Int64
)

// IncDecoded records one successfully decoded message of the given
// kind ("request", "reply", "event", "error", "setup-request",
// "setup-reply").
func IncDecoded(kind string) {
	messagesDecoded.Add(1)
	promDecodedTotal.WithLabelValues(kind).Inc()
}

// IncDecodeErrors records one message that failed to decode.
func IncDecodeErrors() {
	decodeErrors.Add(1)
	promDecodeErrorsTotal.Inc()
}

// IncUnknown records one message skipped for an unknown discriminant.
func IncUnknown() {
	unknownMessages.Add(1)
	promUnknownTotal.Inc()
}

// AddBytesScanned records stream bytes consumed by the scanner.
func AddBytesScanned(n int64) {
	if n > 0 {
		bytesScanned.Add(n)
		promBytesScanned.Add(float64(n))
	}
}

// IncRecords records one emitted scan record, decoded or not.
func IncRecords() { recordsScanned.Add(1) }

// Reset zeroes the atomic counters. Test helper; the Prometheus
// collectors are monotonic and left alone.
func Reset() {
	messagesDecoded.Store(0)
	decodeErrors.Store(0)
	unknownMessages.Store(0)
	bytesScanned.Store(0)
	recordsScanned.Store(0)
}

func SnapshotData() Snapshot {
	return Snapshot{
		MessagesDecoded: messagesDecoded.Load(),
		DecodeErrors:    decodeErrors.Load(),
		UnknownMessages: unknownMessages.Load(),
		BytesScanned:    bytesScanned.Load(),
		RecordsScanned:  recordsScanned.Load(),
		UpdatedUnix:     time.Now().Unix(),
	}
}

// Serve exposes /metrics (Prometheus) and /metrics.json (snapshot) on
// addr. Blocks like http.ListenAndServe.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/metrics.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(SnapshotData()); err != nil {
			log.Printf("metrics: encode snapshot: %v", err)
		}
	})
	return http.ListenAndServe(addr, mux)
}
