package core

import (
	"fmt"
	"strings"
)

// WeekLabeler renders the human-readable range shown on chart axes.
type WeekLabeler interface {
	Label(start, end Date) string
}

// FrenchLabeler formats ranges like "27 oct. - 2 nov.".
type FrenchLabeler struct{}

// EnglishLabeler formats ranges like "Oct 27 - Nov 2".
type EnglishLabeler struct{}

var frenchMonths = [12]string{
	"janv.", "févr.", "mars", "avr.", "mai", "juin",
	"juil.", "août", "sept.", "oct.", "nov.", "déc.",
}

var englishMonths = [12]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

func (FrenchLabeler) Label(start, end Date) string {
	return frenchDay(start) + " - " + frenchDay(end)
}

func frenchDay(d Date) string {
	return fmt.Sprintf("%d %s", d.Day(), frenchMonths[d.Month()-1])
}

func (EnglishLabeler) Label(start, end Date) string {
	return englishDay(start) + " - " + englishDay(end)
}

func englishDay(d Date) string {
	return fmt.Sprintf("%s %d", englishMonths[d.Month()-1], d.Day())
}

// LabelerFor maps a LOCALE value to a labeler. Unknown locales fall back to French.
func LabelerFor(locale string) WeekLabeler {
	l := strings.ToLower(strings.TrimSpace(locale))
	if strings.HasPrefix(l, "en") {
		return EnglishLabeler{}
	}
	return FrenchLabeler{}
}
