// Package web embeds the static landing and admin pages.
package web

import "embed"

//go:embed static/*
var Assets embed.FS
