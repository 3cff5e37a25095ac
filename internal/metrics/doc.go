// Package metrics provides build metrics for ptxbuilder.
//
// Components receive a Recorder through an option and default to
// NoopRecorder:
//
//	b, err := builder.New(path, builder.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// The CLI exports the registry with WriteTextfile after each build, for
// node_exporter's textfile collector.
package metrics
