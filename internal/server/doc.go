// Package server implements the optional HTTP monitoring API.
package server
