// Package internal contains the row encoding of the oak engine.
package internal
