package logo

import (
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
)

func Display() {
	s, _ := pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("Cust", pterm.FgYellow.ToStyle()),
		putils.LettersFromStringWithStyle("odia", pterm.FgLightCyan.ToStyle())).Srender()
	pterm.DefaultCenter.Println(s)
	pterm.DefaultCenter.WithCenterEachLineSeparately().
		Println("This software belongs to\nThe Aurum Labs Custodia Project\n(C) 2024.")
}
