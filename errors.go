/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Join failures surfaced to clients as error frames.
var (
	errSessionNotFound = errors.New("No game found with that code.")
	errAlreadyStarted  = errors.New("That game has already started.")
	errSessionFull     = errors.New("That game is full.")
	errDuplicateName   = errors.New("That name is already taken. Please choose a different name.")
	errInvalidName     = errors.New("Please enter a valid name.")
	errNoPlayers       = errors.New("At least one player must join before the game can start.")
)

var (
	errUnsupportedImage = errors.New("unsupported image type")
	errImageNotFound    = errors.New("image not found")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
