package elo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

func TestDefaultParams_Valid(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"missing name", func(p *Params) { p.Name = "" }},
		{"missing K entry", func(p *Params) { delete(p.K, tennis.CodeWomenGrandSlam) }},
		{"zero K", func(p *Params) { p.K[tennis.CodeTour] = 0 }},
		{"negative S", func(p *Params) { p.S[tennis.CodeFutures] = -400 }},
		{"zero start rating", func(p *Params) { p.StartEloWomen = 0 }},
		{"zero boost", func(p *Params) { p.NewBoost = 0 }},
		{"negative decay", func(p *Params) { p.DecayRate = -0.1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := DefaultParams()
			tt.mutate(params)
			assert.ErrorIs(t, params.Validate(), ErrInvalidParams)
		})
	}
}

func TestLoadParamsFile(t *testing.T) {
	payload := `
name: experiment-42
k: {F: 70, C: 85, A: 100, M: 110, G: 120, WF: 70, WC: 85, WA: 100, WM: 110, WG: 120}
s: {F: 400, C: 400, A: 400, M: 400, G: 400, WF: 400, WC: 400, WA: 400, WM: 400, WG: 400}
margin_base: 0.9
margin_scale: 0.6
decay_rate: 0.3
decay_start_days: 200
new_threshold: 15
new_boost: 1.4
returning_days: 400
returning_boost: 1.1
start_elo_men: 1500
start_elo_women: 1500
`

	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	params, err := LoadParamsFile(path)
	require.NoError(t, err)

	assert.Equal(t, "experiment-42", params.Name)
	assert.InDelta(t, 100.0, params.K[tennis.CodeTour], 1e-9)
	assert.InDelta(t, 120.0, params.K[tennis.CodeWomenGrandSlam], 1e-9)
	assert.InDelta(t, 0.9, params.MarginBase, 1e-9)
	assert.Equal(t, 15, params.NewThreshold)
}

func TestLoadParamsFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: incomplete\n"), 0o600))

	_, err := LoadParamsFile(path)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestBaseline(t *testing.T) {
	params := DefaultParams()
	params.StartEloMen = 1500
	params.StartEloWomen = 1450

	assert.InDelta(t, 1500, params.Baseline(tennis.CodeMasters), 1e-9)
	assert.InDelta(t, 1450, params.Baseline(tennis.CodeWomenMasters), 1e-9)
}
