// Package config defines the format-agnostic configuration model of a
// calcgrid process, along with the Loader interface that fills it from a
// file. The HCL implementation lives in internal/hcl.
package config
