// Package web embeds the HTML templates and static assets.
package web

import "embed"

// Assets holds templates/*.html and static/*.
//
//go:embed templates/*.html static/*
var Assets embed.FS
