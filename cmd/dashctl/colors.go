package main

import "github.com/fatih/color"

func colorFor(ok bool) color.Attribute {
	if ok {
		return color.FgGreen
	}
	return color.FgRed
}
