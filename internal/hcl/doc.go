// Package hcl provides the HCL implementation of config.Loader. It parses a
// calcgrid configuration file, decodes its blocks with gohcl and converts
// declared globals to their cty types.
package hcl
