package main

import "github.com/fatih/color"

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
)

func printWarn(format string, a ...interface{}) {
	warn.Printf(format+"\n", a...)
}
