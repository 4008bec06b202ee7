// Package cli implements the dagflow command line.
//
//	dagflow validate pipeline.yml
//	dagflow run pipeline.yml --set github.ref=refs/heads/main
//	dagflow simulate pipeline.yml --seed 7
//	dagflow compile pipeline.yml --target cijob --format yaml
//	dagflow schedule nightly.yml
//	dagflow store save pipeline.yml
//
// Configuration is read from dagflow.yml (see the config package) and may
// be overridden with DAGFLOW_* environment variables.
package cli
