// Package web holds the page templates and static assets, compiled into the
// binary so the server does not depend on its working directory.
package web

import "embed"

//go:embed templates/*.html static/*
var FS embed.FS
