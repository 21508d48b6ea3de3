// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/vorlif/humanize"
	"github.com/vorlif/spreak/localize"
)

// i18nVars maps the short keys usable with the loc template func to their message IDs.
var i18nVars = map[string]localize.MsgID{
	"title":       "Share your location",
	"coordinates": "Coordinates",
	"updated":     "Updated",
	"error":       "Error",
	"resolving":   "Resolving address…",
	"copied":      "Address copied",
}

func (p *Presenter) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":    timeFormat,
		"localizedTime": p.localizedTime,
		"naturalTime":   p.naturalTime,
		"floatFormat":   floatFormat,
		"loc":           p.loc,
		"lc":            strings.ToLower,
		"uc":            strings.ToUpper,
	}
}

// loc translates either a short key from i18nVars or a message ID directly.
func (p *Presenter) loc(val string) string {
	if raw, ok := i18nVars[strings.ToLower(val)]; ok {
		return p.localizer.Get(raw)
	}
	return p.localizer.Get(val)
}

func (p *Presenter) localizedTime(val time.Time) string {
	return p.humanizer.FormatTime(val, humanize.TimeFormat)
}

func (p *Presenter) naturalTime(val time.Time) string {
	return p.humanizer.NaturalTime(val)
}

func timeFormat(val time.Time, fmt string) string {
	return val.Format(fmt)
}

// floatFormat truncates val to the given precision.
func floatFormat(val float64, precision int) string {
	pow := math.Pow(10, float64(precision))
	return fmt.Sprintf("%.*f", precision, math.Trunc(val*pow)/pow)
}

// EmojiWithSpace pads an emoji so the following text does not overlap it in terminal-width
// based renderers.
func EmojiWithSpace(emoji string) string {
	width := runewidth.StringWidth(emoji)
	return emoji + strings.Repeat(" ", max(width-1, 1))
}
