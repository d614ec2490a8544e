package activity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_uploads_total",
		Help: "Files registered since start.",
	})

	deletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_deletes_total",
		Help: "Files deleted since start.",
	})

	uploadedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_uploaded_bytes_total",
		Help: "Bytes stored by uploads since start.",
	})
)
