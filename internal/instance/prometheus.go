package instance

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Prometheus interface {
	Register(r prometheus.Registerer)

	StartRequest() func(success bool)
	StartIngest() func(success bool)

	TotalBytesServed(int)
	TotalBytesIngested(int)
	InputFileType(string)
	EventDropped()
}
