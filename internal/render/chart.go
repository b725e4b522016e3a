package render

import (
	"bytes"
	"fmt"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"healthdash/internal/dataset"
)

const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 6 * vg.Inch
)

// Chart draws v as PNG or SVG. Message views and empty charts produce a blank
// plot titled with the message.
func Chart(v View, format string) ([]byte, error) {
	if format != FormatPNG && format != FormatSVG {
		return nil, fmt.Errorf("unsupported chart format %q", format)
	}

	p := plot.New()
	p.Title.Text = v.Title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = v.XLabel
	p.Y.Label.Text = v.YLabel
	p.Legend.Top = true

	var err error
	switch {
	case v.Kind != KindChart || v.Empty():
		drawMessage(p, v)
	case v.Chart == Bar:
		err = drawBars(p, v.Series)
	case v.Chart == Scatter:
		err = drawPoints(p, v.Series, false)
	default:
		err = drawPoints(p, v.Series, true)
	}
	if err != nil {
		return nil, fmt.Errorf("drawing %s chart: %w", v.Chart, err)
	}

	wt, err := p.WriterTo(chartWidth, chartHeight, format)
	if err != nil {
		return nil, fmt.Errorf("creating %s canvas: %w", format, err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func drawMessage(p *plot.Plot, v View) {
	msg := v.Message
	if msg == "" {
		msg = "Nothing to display"
	}
	if p.Title.Text == "" {
		p.Title.Text = msg
	} else {
		p.Title.Text += "\n" + msg
	}
	p.HideAxes()
}

// axis maps x labels to plot positions: their numeric value when every label
// is a number, their rank otherwise.
type axis struct {
	pos     map[string]float64
	labels  []string
	nominal bool
}

func newAxis(series []dataset.Series) axis {
	var pts []dataset.Point
	for _, s := range series {
		pts = append(pts, s.Points...)
	}
	labels := dataset.Distinct(pts, func(p dataset.Point) string { return p.X })

	a := axis{pos: make(map[string]float64, len(labels)), labels: labels}
	for _, l := range labels {
		f, err := strconv.ParseFloat(l, 64)
		if err != nil {
			a.nominal = true
			break
		}
		a.pos[l] = f
	}
	if a.nominal {
		for i, l := range labels {
			a.pos[l] = float64(i)
		}
	}
	return a
}

func drawPoints(p *plot.Plot, series []dataset.Series, joined bool) error {
	ax := newAxis(series)
	for i, s := range series {
		xys := make(plotter.XYs, 0, len(s.Points))
		for _, pt := range s.Points {
			xys = append(xys, plotter.XY{X: ax.pos[pt.X], Y: pt.Y})
		}
		if len(xys) == 0 {
			continue
		}

		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = plotutil.Color(i)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)

		if joined && len(xys) > 1 {
			l, err := plotter.NewLine(xys)
			if err != nil {
				return err
			}
			l.LineStyle.Color = plotutil.Color(i)
			l.LineStyle.Width = vg.Points(1.5)
			p.Add(l)
			p.Legend.Add(s.Name, l, sc)
		} else {
			p.Legend.Add(s.Name, sc)
		}
	}
	if ax.nominal {
		p.NominalX(ax.labels...)
	}
	p.Add(plotter.NewGrid())
	return nil
}

func drawBars(p *plot.Plot, series []dataset.Series) error {
	ax := newAxis(series)
	n := len(series)
	width := vg.Points(40) / vg.Length(n)
	if width < vg.Points(2) {
		width = vg.Points(2)
	}

	for i, s := range series {
		byX := make(map[string]float64, len(s.Points))
		for _, pt := range s.Points {
			byX[pt.X] += pt.Y
		}
		values := make(plotter.Values, len(ax.labels))
		for j, l := range ax.labels {
			values[j] = byX[l]
		}

		bars, err := plotter.NewBarChart(values, width)
		if err != nil {
			return err
		}
		bars.Color = plotutil.Color(i)
		bars.LineStyle.Width = vg.Length(0)
		bars.Offset = vg.Length(i)*width - vg.Length(n-1)*width/2
		p.Add(bars)
		p.Legend.Add(s.Name, bars)
	}
	p.NominalX(ax.labels...)
	p.X.Tick.Label.Rotation = 0.6
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	p.Add(&plotter.Grid{Horizontal: plotter.DefaultGridLineStyle})
	return nil
}
