package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	purple = lipgloss.Color("#A855F7")
	green  = lipgloss.Color("#22C55E")
	yellow = lipgloss.Color("#EAB308")
	red    = lipgloss.Color("#EF4444")
	gray   = lipgloss.Color("#6B7280")

	logoStyle       = lipgloss.NewStyle().Bold(true).Foreground(purple)
	userPromptStyle = lipgloss.NewStyle().Bold(true).Foreground(green)
	backendStyle    = lipgloss.NewStyle().Bold(true).Foreground(yellow)
	errorStyle      = lipgloss.NewStyle().Bold(true).Foreground(red)
	mutedStyle      = lipgloss.NewStyle().Foreground(gray)

	answerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(gray).
			Padding(0, 1)
)

func printBanner(w io.Writer, backends []string) {
	fmt.Fprintln(w, logoStyle.Render("chorus"))
	fmt.Fprintln(w, mutedStyle.Render("asking "+strings.Join(backends, ", ")))
	fmt.Fprintln(w, mutedStyle.Render("@model or @all to target, /help for commands"))
	fmt.Fprintln(w)
}
