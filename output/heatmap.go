package output

import (
	"fmt"
	"os"

	"github.com/ChristianF88/pradix/radix"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// PlotPassHeatmap creates an interactive heatmap of bucket occupancy: one row
// per pass, one column per bucket.
func PlotPassHeatmap(passes []radix.PassStats, buckets int, filename string) error {
	if len(passes) == 0 {
		return fmt.Errorf("no passes to plot")
	}

	var heatmapData []opts.HeatMapData
	var maxCount int
	for _, p := range passes {
		for bucket, count := range p.Counts {
			if count > maxCount {
				maxCount = count
			}
			if count > 0 {
				heatmapData = append(heatmapData, opts.HeatMapData{
					Value: [3]interface{}{bucket, p.Pass, count},
					Name:  fmt.Sprintf("pass %d, bucket %d (bits %d..%d)", p.Pass, bucket, p.Shift, p.Shift+uint(bitsOf(buckets))-1),
				})
			}
		}
	}

	heatmap := charts.NewHeatMap()
	heatmap.SetGlobalOptions(
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(false),
		}),
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       "Radix Pass Heatmap",
			Width:           "180vh",
			Height:          "60vh",
			Theme:           types.ThemeVintage,
			BackgroundColor: "transparent",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("Bucket occupancy per pass (%d buckets)", buckets),
			Left:  "center",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Trigger: "item",
			Formatter: opts.FuncOpts(`function (params) {
		return params.name + '<br />Keys: ' + params.value[2];
	}`),
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show: opts.Bool(true),
			Min:  0,
			Max:  float32(maxCount),
			InRange: &opts.VisualMapInRange{
				Color: []string{"#ffff8f", "#ff0000", "#000000"},
			},
			Orient: "vertical",
			Right:  "5%",
			Top:    "middle",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:        "Bucket",
			Type:        "category",
			Data:        makeRange(0, buckets-1),
			SplitNumber: 16,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "Pass",
			Type: "category",
			Data: makeRange(0, len(passes)-1),
		}),
	)

	heatmap.AddSeries("Occupancy", heatmapData)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(heatmap)

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not create heatmap file %s: %w", filename, err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("rendering heatmap: %w", err)
	}
	return nil
}

// bitsOf returns log2 of a power of two.
func bitsOf(buckets int) int {
	n := 0
	for buckets > 1 {
		buckets >>= 1
		n++
	}
	return n
}

// makeRange creates an integer slice [min..max]
func makeRange(min, max int) []int {
	if max < min {
		return nil
	}
	r := make([]int, max-min+1)
	for i := range r {
		r[i] = min + i
	}
	return r
}
