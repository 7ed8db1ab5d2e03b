package stage

// Health reports whether a pipeline stage is ready to process jobs.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy returns a ready Health record for the named stage.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy returns a not-ready Health record with a reason.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
