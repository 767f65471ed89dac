package chartjs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
  "type": "bar",
  "data": {
    "labels": ["Red", "Blue", "Yellow"],
    "datasets": [{
      "label": "# of Votes",
      "data": [12, null, {"x": 2, "y": 3, "r": 5}],
      "backgroundColor": "rgba(255, 99, 132, 0.2)",
      "borderColor": ["red", "blue"],
      "borderWidth": 1
    }]
  },
  "options": {
    "responsive": true,
    "fonts": {"path": "/tmp/a.ttf", "family": "A"},
    "scales": {"yAxes": [{"ticks": {"beginAtZero": true, "max": 20}}]}
  }
}`

func TestDecodeConfiguration(t *testing.T) {
	var cfg Configuration
	require.NoError(t, json.Unmarshal([]byte(sampleConfig), &cfg))

	assert.Equal(t, "bar", cfg.Type)
	require.Len(t, cfg.Data.Datasets, 1)
	ds := cfg.Data.Datasets[0]
	require.Len(t, ds.Data, 3)
	assert.Equal(t, Point{Y: 12}, ds.Data[0])
	assert.True(t, ds.Data[1].Null)
	assert.Equal(t, Point{X: 2, Y: 3, R: 5, HasX: true}, ds.Data[2])
	assert.Equal(t, Colors{"rgba(255, 99, 132, 0.2)"}, ds.BackgroundColor)
	assert.Equal(t, "blue", ds.BorderColor.At(1))
	assert.Equal(t, "red", ds.BorderColor.At(2))

	require.NotNil(t, cfg.Options)
	assert.True(t, cfg.Options.Responsive)
	assert.Equal(t, FontList{{Path: "/tmp/a.ttf", Family: "A"}}, cfg.Options.Fonts)
	require.Len(t, cfg.Options.Scales.YAxes, 1)
	assert.True(t, cfg.Options.Scales.YAxes[0].Ticks.BeginAtZero)
	assert.Equal(t, 20.0, *cfg.Options.Scales.YAxes[0].Ticks.Max)
}

func TestDecodeFontList(t *testing.T) {
	var fl FontList
	require.NoError(t, json.Unmarshal([]byte(`[{"path":"a","family":"A"},{"path":"b","family":"B"}]`), &fl))
	assert.Len(t, fl, 2)

	assert.Error(t, json.Unmarshal([]byte(`"a"`), &fl))
}

func TestDecodeInvalidPoint(t *testing.T) {
	var p Point
	assert.Error(t, json.Unmarshal([]byte(`"twelve"`), &p))
}

func TestPointMarshal(t *testing.T) {
	out, err := json.Marshal([]Point{{Y: 1}, {Null: true}, XY(1, 2)})
	require.NoError(t, err)
	assert.JSONEq(t, `[1, null, {"x": 1, "y": 2}]`, string(out))
}

func TestValues(t *testing.T) {
	assert.Equal(t, []Point{{Y: 1}, {Y: 2}}, Values(1, 2))
	assert.Equal(t, "", Colors(nil).At(3))
}
