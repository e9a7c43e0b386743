package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoColorStyles_RenderPlain(t *testing.T) {
	// Given: no color styles
	styles := NoColorStyles()

	// Then: text passes through untouched, except marks which are bracketed
	assert.Equal(t, "alice", styles.Sender.Render("alice"))
	assert.Equal(t, "12:00", styles.Time.Render("12:00"))
	assert.Equal(t, "[hit]", styles.Mark.Render("hit"))
}

func TestDefaultStyles_HeaderIsBold(t *testing.T) {
	styles := DefaultStyles()

	assert.True(t, styles.Header.GetBold())
	assert.True(t, styles.Mark.GetBold())
}

func TestGetStyles(t *testing.T) {
	assert.Equal(t, "[x]", GetStyles(true).Mark.Render("x"))
	assert.True(t, GetStyles(false).Header.GetBold())
}
