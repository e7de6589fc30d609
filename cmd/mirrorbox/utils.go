package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/openmined/mirrorbox/internal/version"
)

var (
	red   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	green = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cyan  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

const art = `
 _ __ ___ (_)_ __ _ __ ___  _ __| |__   _____  __
| '_ ' _ \| | '__| '__/ _ \| '__| '_ \ / _ \ \/ /
| | | | | | | |  | | | (_) | |  | |_) | (_) >  <
|_| |_| |_|_|_|  |_|  \___/|_|  |_.__/ \___/_/\_\
`

func showHeader(w io.Writer) {
	fmt.Fprintln(w, cyan.Bold(true).Render(art))
	fmt.Fprintln(w, gray.Render(version.AppName+" "+version.Get().String()))
}

// printField prints an aligned "label: value" line
func printField(w io.Writer, label string, value string) {
	fmt.Fprintf(w, "%-12s %s\n", label+":", cyan.Render(value))
}
