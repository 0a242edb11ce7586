package receipt

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var (
	titleStyle  = props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Center}
	headerStyle = props.Text{Size: 11, Style: fontstyle.Bold, Align: align.Left}
	bodyStyle   = props.Text{Size: 10, Align: align.Left}
	labelStyle  = props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Left}
	footerStyle = props.Text{Size: 8, Style: fontstyle.Italic, Align: align.Center}
)

func init() {
	// pdfcpu must not create a config dir in the user's home
	api.DisableConfigDir()
}

// PDF lays out r as an A4 receipt and stamps the watermark when cfg
// enables one.
func PDF(cfg Config, r Rendered) ([]byte, error) {
	m := maroto.New(config.NewBuilder().
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15).
		Build())

	if cfg.ShowLogo && r.Header != "" {
		m.AddRows(text.NewRow(10, r.Header, headerStyle))
	}
	m.AddRows(
		text.NewRow(14, r.Title, titleStyle),
		line.NewRow(4),
	)
	for _, f := range r.Fields {
		m.AddRow(8,
			text.NewCol(4, f.Label, labelStyle),
			text.NewCol(8, f.Value, bodyStyle),
		)
	}
	m.AddRows(
		line.NewRow(4),
		text.NewRow(30, r.Body, bodyStyle),
	)
	if r.Footer != "" {
		m.AddRows(text.NewRow(10, r.Footer, footerStyle))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate receipt pdf: %w", err)
	}
	out := doc.GetBytes()
	if r.Watermark == "" {
		return out, nil
	}
	return stamp(out, r.Watermark, cfg.Watermark.Opacity)
}

func stamp(pdf []byte, text string, opacity float64) ([]byte, error) {
	if opacity <= 0 || opacity > 1 {
		opacity = DefaultConfig().Watermark.Opacity
	}
	desc := "fontname:Helvetica, points:60, rotation:45, scalefactor:0.8 rel, fillcolor:#808080, opacity:" +
		strconv.FormatFloat(opacity, 'f', 2, 64)
	wm, err := api.TextWatermark(text, desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("receipt watermark: %w", err)
	}
	var buf bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(pdf), &buf, nil, wm, nil); err != nil {
		return nil, fmt.Errorf("receipt watermark: %w", err)
	}
	return buf.Bytes(), nil
}
