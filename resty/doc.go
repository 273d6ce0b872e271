// Package resty writes the run-trace header on go-resty requests.
package resty
