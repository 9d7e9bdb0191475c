package render

import "testing"

func TestSteps(t *testing.T) {
	r := NewRenderer(Config{Width: 320, Height: 240})
	traces := []StepTrace{
		{Label: "I Clamp to: PN", Times: []float64{0, 10, 30, 50}, Values: []float64{0, 0.2, 0, 0}},
		{Label: "I Clamp to: PV", Times: []float64{0, 5, 50}, Values: []float64{-0.1, 0, 0}},
	}
	fig, err := r.Steps(traces, "Current clamps", "Time (ms)", "Current (nA)", Options{})
	if err != nil {
		t.Fatalf("Steps() error = %v", err)
	}
	decodePNG(t, fig.PNG, 320, 240)

	fig, err = r.Steps(nil, "empty", "", "", Options{})
	if err != nil {
		t.Fatalf("Steps() error = %v", err)
	}
	decodePNG(t, fig.PNG, 320, 240)

	traces[0].Values = traces[0].Values[:2]
	if _, err := r.Steps(traces, "", "", "", Options{}); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestSpikePanels(t *testing.T) {
	r := NewRenderer(Config{Width: 320, Height: 240})
	panels := []SpikePanel{
		{Title: "Input Spike Train to: thalamus", Times: []float64{5, 15, 25}, NodeIDs: []float64{0, 1, 0}},
		{Title: "Input Spike Train to: bg", Times: []float64{7}, NodeIDs: []float64{3}},
		{Title: "silent"},
	}
	fig, err := r.SpikePanels(panels, "Input spike trains", Options{})
	if err != nil {
		t.Fatalf("SpikePanels() error = %v", err)
	}
	decodePNG(t, fig.PNG, 320, 240)

	panels[0].NodeIDs = nil
	if _, err := r.SpikePanels(panels, "", Options{}); err == nil {
		t.Fatal("expected length mismatch error")
	}
}
