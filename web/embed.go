// Package web carries the page templates and static assets compiled into the
// binary.
package web

import "embed"

// Templates holds layouts, partials and pages, parsed by view.NewEngine.
//
//go:embed templates/**/*.html
var Templates embed.FS

// Static holds CSS and the small scripts for flash dismissal and the
// district/upazila cascade, served under /static/.
//
//go:embed static/**/*
var Static embed.FS
