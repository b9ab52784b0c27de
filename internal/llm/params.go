package llm

import (
	"math"

	"github.com/ksu-assistant/backend/internal/classifier"
	"github.com/ksu-assistant/backend/pkg/utils"
)

// Params are the sampling options sent with a generation request.
type Params struct {
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	NumPredict    int     `json:"num_predict"`
	RepeatPenalty float64 `json:"repeat_penalty"`
	TopK          int     `json:"top_k"`
}

var defaultProfile = Params{Temperature: 0.05, TopP: 0.4, NumPredict: 400, RepeatPenalty: 1.5, TopK: 25}

var profiles = map[classifier.Intent]Params{
	classifier.Factual:    {Temperature: 0.05, TopP: 0.4, NumPredict: 300, RepeatPenalty: 1.5, TopK: 25},
	classifier.Comparison: {Temperature: 0.15, TopP: 0.6, NumPredict: 600, RepeatPenalty: 1.6, TopK: 35},
	classifier.Admission:  {Temperature: 0.0, TopP: 0.25, NumPredict: 500, RepeatPenalty: 1.5, TopK: 15},
	classifier.Tuition:    {Temperature: 0.0, TopP: 0.25, NumPredict: 400, RepeatPenalty: 1.5, TopK: 15},
	classifier.Faculties:  {Temperature: 0.05, TopP: 0.4, NumPredict: 350, RepeatPenalty: 1.4, TopK: 25},
	classifier.Procedural: {Temperature: 0.1, TopP: 0.5, NumPredict: 450, RepeatPenalty: 1.5, TopK: 30},
}

// ProfileFor returns the base sampling profile of an intent.
func ProfileFor(intent classifier.Intent) Params {
	if p, ok := profiles[intent]; ok {
		return p
	}
	return defaultProfile
}

// Adapt shortens the output budget for short questions and grows it for long ones.
func (p Params) Adapt(query string) Params {
	n := utils.RuneLen(query)
	switch {
	case n < 20:
		p.NumPredict = minInt(150, p.NumPredict)
	case n > 100:
		p.NumPredict = minInt(800, int(float64(p.NumPredict)*1.2))
	}
	return p
}

// Variations derives k sampling profiles for parallel candidates: the first
// is cooler and shorter, the second unchanged, later ones warmer and longer.
// Nucleus probability alternates down and up.
func (p Params) Variations(k int) []Params {
	out := make([]Params, 0, k)
	for i := 0; i < k; i++ {
		v := p
		switch i {
		case 0:
			v.Temperature = math.Max(0, p.Temperature-0.02)
			v.NumPredict = int(float64(p.NumPredict) * 0.9)
		case 1:
		default:
			v.Temperature = math.Min(0.3, p.Temperature+0.02)
			v.NumPredict = int(float64(p.NumPredict) * 1.1)
		}
		if i%2 == 0 {
			v.TopP = math.Max(0.2, p.TopP-0.05)
		} else {
			v.TopP = math.Min(0.8, p.TopP+0.05)
		}
		out = append(out, v)
	}
	return out
}

// Strict is used when regenerating after a critical validation failure.
func (p Params) Strict() Params {
	p.Temperature = 0
	p.TopP = 0.15
	p.RepeatPenalty = 1.7
	p.NumPredict = minInt(600, int(float64(p.NumPredict)*1.5))
	return p
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
