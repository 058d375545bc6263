// Package config provides the configuration of a tabula run.
//
// A single Config structure holds one section per component:
//
//   - Dialect: delimiter, quote, escape and record delimiter of the text format
//   - Inference: sample or full type inference and boolean literals
//   - Builder: null tokens and the conversion failure policy
//   - Codec: colfile chunk size, workers and write verification
//   - Storage: remote timeout and S3 client settings
//   - Logging and Observability: zap, tracing and the metrics text file
//
// Configuration files are YAML. ${VAR_NAME} references are replaced with
// environment values before parsing, and keys missing from the file keep
// their defaults:
//
//	cfg, err := config.Load("tabula.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	dialect, _ := cfg.Dialect.CSV()
//
// The CLI layers flags and TABULA_* environment variables on top of the
// loaded file.
package config
