package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "segstream_frames_sent_total",
		Help: "Frames sent by the camera producer",
	})

	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "segstream_bytes_sent_total",
		Help: "Wire bytes sent by the camera producer",
	})

	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "segstream_frames_received_total",
		Help: "Complete frame records decoded by the processor",
	})

	MalformedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "segstream_malformed_records_total",
		Help: "Wire records discarded as malformed",
	})

	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segstream_frames_processed_total",
		Help: "Processed frames by outcome status",
	}, []string{"status"})

	Batches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "segstream_batches_total",
		Help: "Batches dispatched to the processing stage",
	})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "segstream_batch_duration_seconds",
		Help:    "Wall time to process one batch",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	ConnectionOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "segstream_connection_open",
		Help: "1 while a producer connection is open",
	})
)
