// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"

	"github.com/wneessen/waybar-locshare/internal/config"
	"github.com/wneessen/waybar-locshare/internal/pipeline"
)

const (
	OutputClass           = "locshare"
	OutputClassUnresolved = "locshare-unresolved"
	AltResolved           = "resolved"
	AltUnresolved         = "unresolved"

	marker = "📍"
)

// Output is a single waybar JSON line.
type Output struct {
	Text    string `json:"text"`
	Tooltip string `json:"tooltip"`
	Alt     string `json:"alt"`
	Class   string `json:"class"`
}

// TemplateContext is the data the text, alt text and tooltip templates are rendered with.
type TemplateContext struct {
	Marker   string
	Address  string
	Resolved bool

	Latitude       float64
	Longitude      float64
	LatitudeDelta  float64
	LongitudeDelta float64
	ShareURL       string

	// Visible edges of the map viewport in degrees.
	South, West, North, East float64

	UpdatedAt time.Time
	Seq       uint64
}

type Presenter struct {
	text      *template.Template
	altText   *template.Template
	tooltip   *template.Template
	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
}

func New(conf *config.Config, loc *spreak.Localizer) (*Presenter, error) {
	collection, err := humanize.New(humanize.WithLocale(de.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}
	pres := &Presenter{
		localizer: loc,
		humanizer: collection.CreateHumanizer(loc.Language()),
	}

	if pres.text, err = pres.parse("text", conf.Templates.Text); err != nil {
		return nil, err
	}
	if pres.altText, err = pres.parse("alt_text", conf.Templates.AltText); err != nil {
		return nil, err
	}
	if pres.tooltip, err = pres.parse("tooltip", conf.Templates.Tooltip); err != nil {
		return nil, err
	}

	// Catch references to unknown fields at startup rather than on the first region event
	sample := TemplateContext{Marker: marker, Address: "sample", Resolved: true, UpdatedAt: time.Now()}
	for _, tpl := range []*template.Template{pres.text, pres.altText, pres.tooltip} {
		if _, err = execute(tpl, sample); err != nil {
			return nil, err
		}
	}
	return pres, nil
}

func (p *Presenter) parse(name, text string) (*template.Template, error) {
	tpl, err := template.New(name).Funcs(p.templateFuncMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	return tpl, nil
}

// BuildContext turns a pipeline snapshot into the template context. Until an address is
// resolved, Address holds a localized placeholder.
func (p *Presenter) BuildContext(state pipeline.State) TemplateContext {
	ctx := TemplateContext{
		Marker:         EmojiWithSpace(marker),
		Address:        state.Address.Value(),
		Resolved:       state.Address.IsSet(),
		Latitude:       state.Region.Latitude,
		Longitude:      state.Region.Longitude,
		LatitudeDelta:  state.Region.LatitudeDelta,
		LongitudeDelta: state.Region.LongitudeDelta,
		ShareURL:       state.ShareURL,
		UpdatedAt:      state.UpdatedAt,
		Seq:            state.Seq,
	}
	bounds := state.Region.Bounds()
	ctx.South, ctx.West = bounds.Lo().Lat.Degrees(), bounds.Lo().Lng.Degrees()
	ctx.North, ctx.East = bounds.Hi().Lat.Degrees(), bounds.Hi().Lng.Degrees()
	if !ctx.Resolved {
		ctx.Address = p.localizer.Get("Resolving address…")
	}
	return ctx
}

// Render renders the snapshot into a waybar output line. With showAlt the alt text template
// replaces the text template.
func (p *Presenter) Render(state pipeline.State, showAlt bool) (Output, error) {
	tplCtx := p.BuildContext(state)

	textTpl := p.text
	if showAlt {
		textTpl = p.altText
	}
	text, err := execute(textTpl, tplCtx)
	if err != nil {
		return Output{}, err
	}
	tooltip, err := execute(p.tooltip, tplCtx)
	if err != nil {
		return Output{}, err
	}

	output := Output{
		Text:    text,
		Tooltip: tooltip,
		Alt:     AltResolved,
		Class:   OutputClass,
	}
	if !tplCtx.Resolved {
		output.Alt = AltUnresolved
		output.Class = OutputClassUnresolved
	}
	return output, nil
}

func execute(tpl *template.Template, data TemplateContext) (string, error) {
	buf := bytes.NewBuffer(nil)
	if err := tpl.Execute(buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", tpl.Name(), err)
	}
	return buf.String(), nil
}
