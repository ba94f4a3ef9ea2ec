package estimator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NameSeparator joins item names when a per-item list is merged.
const NameSeparator = " + "

// MaxReasoningRunes bounds the stored reasoning text.
const MaxReasoningRunes = 2000

// item is one object as the model returns it. Both "food_name" and
// "name" are accepted for the dish name.
type item struct {
	FoodName  string `json:"food_name"`
	Name      string `json:"name"`
	Calories  number `json:"calories"`
	Protein   number `json:"protein"`
	Fat       number `json:"fat"`
	Carbs     number `json:"carbs"`
	Reasoning string `json:"reasoning"`
}

func (it item) result() Result {
	name := it.FoodName
	if name == "" {
		name = it.Name
	}
	return Result{
		Name:      strings.TrimSpace(name),
		Calories:  float64(it.Calories),
		Protein:   float64(it.Protein),
		Fat:       float64(it.Fat),
		Carbs:     float64(it.Carbs),
		Reasoning: strings.TrimSpace(it.Reasoning),
	}
}

// number decodes a JSON number, a numeric string, or null.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*n = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("number %q: %w", s, err)
		}
		*n = number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = number(f)
	return nil
}

// Parse decodes raw model output into a single Result. The output may be
// wrapped in a markdown code fence and may hold one object or a list of
// per-item objects, which are merged.
func Parse(raw string) (*Result, error) {
	text := stripFence(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: empty output", ErrMalformedResponse)
	}

	switch text[0] {
	case '{':
		var it item
		if err := json.Unmarshal([]byte(text), &it); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		r := Merge([]Result{it.result()})
		return &r, nil

	case '[':
		var items []item
		if err := json.Unmarshal([]byte(text), &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: empty item list", ErrMalformedResponse)
		}
		results := make([]Result, len(items))
		for i, it := range items {
			results[i] = it.result()
		}
		r := Merge(results)
		return &r, nil

	default:
		return nil, fmt.Errorf("%w: not a JSON object or array", ErrMalformedResponse)
	}
}

// Merge combines per-item results: names joined with NameSeparator,
// numbers summed, reasoning joined with newlines. Calories are rounded to
// a whole number and macros to one decimal place. Negative values count
// as zero. Merging a single result only normalises it.
func Merge(results []Result) Result {
	var (
		names     []string
		reasoning []string
		out       Result
	)
	for _, r := range results {
		if r.Name != "" {
			names = append(names, r.Name)
		}
		if r.Reasoning != "" {
			reasoning = append(reasoning, r.Reasoning)
		}
		out.Calories += nonNegative(r.Calories)
		out.Protein += nonNegative(r.Protein)
		out.Fat += nonNegative(r.Fat)
		out.Carbs += nonNegative(r.Carbs)
	}

	out.Name = strings.Join(names, NameSeparator)
	out.Reasoning = truncateRunes(strings.Join(reasoning, "\n"), MaxReasoningRunes)
	out.Calories = math.Round(out.Calories)
	out.Protein = round1(out.Protein)
	out.Fat = round1(out.Fat)
	out.Carbs = round1(out.Carbs)
	return out
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func nonNegative(f float64) float64 {
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
