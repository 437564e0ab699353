/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyEmojiSet     = errors.New("emoji set must contain at least one emoji")
	ErrInvalidEmoji      = errors.New("invalid emoji")
	ErrInvalidDuration   = errors.New("duration must be greater than zero")
	ErrDivisionUndefined = errors.New("accuracy is undefined without attempts")
)

// newPage renders a minimal page that links back to the home page under prefix.
func newPage(prefix, title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon(prefix))
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"%s/\">%s</a></body></html>", prefix, body))

	return htmlBody.String()
}
