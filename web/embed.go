// Package web holds the browser UI, compiled into the binary.
package web

import "embed"

// FS serves index.html, the whole single-page shelf UI.
//
//go:embed index.html
var FS embed.FS
