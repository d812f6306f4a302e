package global

import "github.com/renanvieira/wire-img/internal/instance"

type Instances struct {
	Prometheus instance.Prometheus
}
