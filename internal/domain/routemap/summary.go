package routemap

import (
	"fmt"
	"math"
	"strconv"
)

// Locale selects the language of user-facing texts.
type Locale string

const (
	LocaleRU Locale = "ru"
	LocaleEN Locale = "en"
)

// SummaryFormat renders route summaries and notices for one locale.
type SummaryFormat struct {
	Locale              Locale
	Meters              string
	Kilometers          string
	Minutes             string
	Template            string // distance label, duration label
	DestinationRequired string
}

var summaryFormats = map[Locale]SummaryFormat{
	LocaleRU: {
		Locale:              LocaleRU,
		Meters:              "м",
		Kilometers:          "км",
		Minutes:             "мин",
		Template:            "Длина маршрута: %s, Время в пути: %s",
		DestinationRequired: "Пожалуйста, укажите целевую точку на карте.",
	},
	LocaleEN: {
		Locale:              LocaleEN,
		Meters:              "m",
		Kilometers:          "km",
		Minutes:             "min",
		Template:            "Route length: %s, Travel time: %s",
		DestinationRequired: "Please pick a destination on the map.",
	},
}

// ParseLocale converts a string to a supported Locale.
func ParseLocale(s string) (Locale, error) {
	l := Locale(s)
	if _, ok := summaryFormats[l]; !ok {
		return "", fmt.Errorf("unsupported locale: %s", s)
	}
	return l, nil
}

// FormatFor returns the summary format of a locale, falling back to ru.
func FormatFor(l Locale) SummaryFormat {
	if f, ok := summaryFormats[l]; ok {
		return f
	}
	return summaryFormats[LocaleRU]
}

// Distance labels meters below 1000 as whole meters, otherwise as kilometers
// with one decimal. Kilometers round the binary value of meters/1000, so
// 1150 m is "1.1" and 1350 m is "1.4", as a browser's toFixed(1) renders them.
func (f SummaryFormat) Distance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d %s", int64(math.Round(meters)), f.Meters)
	}
	return strconv.FormatFloat(meters/1000, 'f', 1, 64) + " " + f.Kilometers
}

// Duration labels whole elapsed minutes; partial minutes are dropped.
func (f SummaryFormat) Duration(seconds float64) string {
	return fmt.Sprintf("%d %s", int64(math.Floor(seconds/60)), f.Minutes)
}

// Summary renders the full summary line for a route.
func (f SummaryFormat) Summary(t Totals) string {
	return fmt.Sprintf(f.Template, f.Distance(t.TotalDistance), f.Duration(t.TotalTime))
}
