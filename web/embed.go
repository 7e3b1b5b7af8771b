// Package web embeds the HTML templates and static assets served by the UI.
package web

import "embed"

// TemplatesFS holds the page and the htmx partials.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds stylesheets and scripts.
//
//go:embed static/*
var StaticFS embed.FS
