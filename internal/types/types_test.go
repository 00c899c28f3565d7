package types

import "testing"

func TestFingerprint(t *testing.T) {
	const text = "Thrilled to share that I got promoted."
	links := []string{"https://example.com/a", "https://example.com/b"}
	base := Fingerprint(text, links)

	if len(base) != 64 {
		t.Fatalf("fingerprint %q is not hex sha256", base)
	}
	if again := Fingerprint(text, []string{"https://example.com/a", "https://example.com/b"}); again != base {
		t.Fatalf("same input hashed differently: %s vs %s", again, base)
	}

	cases := []struct {
		name  string
		text  string
		links []string
	}{
		{"changed text", text + "!", links},
		{"added link", text, append(append([]string{}, links...), "https://example.com/c")},
		{"removed link", text, links[:1]},
		{"swapped links", text, []string{links[1], links[0]}},
		{"no links", text, nil},
	}
	for _, c := range cases {
		if got := Fingerprint(c.text, c.links); got == base {
			t.Errorf("%s: fingerprint unchanged", c.name)
		}
	}

	if Fingerprint(text, nil) != Fingerprint(text, []string{}) {
		t.Error("nil and empty links should hash the same")
	}

	snap := NewPostSnapshot(text, links)
	if snap.Fingerprint != base || snap.Text != text || len(snap.Links) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestNewClassificationResult(t *testing.T) {
	cases := []struct {
		label     string
		prob      float64
		model     string
		wantLabel Label
		wantProb  float64
		wantModel string
	}{
		{"fake", 0.8, "m2", LabelFake, 0.8, "m2"},
		{" REAL ", 0.1, "", LabelReal, 0.1, UnknownModelVersion},
		{"", 0.5, "", LabelUnknown, 0.5, UnknownModelVersion},
		{"satire", 1.7, "m2", LabelUnknown, 1, "m2"},
		{"real", -0.2, "m2", LabelReal, 0, "m2"},
	}
	for _, c := range cases {
		r := NewClassificationResult(c.label, c.prob, c.model, nil)
		if r.Label != c.wantLabel || r.ProbFake != c.wantProb || r.ModelVersion != c.wantModel {
			t.Errorf("NewClassificationResult(%q, %v, %q) = %+v", c.label, c.prob, c.model, r)
		}
		if r.TopSignals == nil || len(r.TopSignals) != 0 {
			t.Errorf("signals should default to empty, got %#v", r.TopSignals)
		}
	}

	signals := []string{"urgency"}
	r := NewClassificationResult("fake", 0.9, "m", signals)
	signals[0] = "mutated"
	if r.TopSignals[0] != "urgency" {
		t.Fatal("signals must be copied")
	}
}

func TestConfidence(t *testing.T) {
	if c := NewClassificationResult("fake", 0.75, "", nil).Confidence(); c != 0.75 {
		t.Errorf("fake confidence = %v", c)
	}
	if c := NewClassificationResult("real", 0.25, "", nil).Confidence(); c != 0.75 {
		t.Errorf("real confidence = %v", c)
	}
}

func TestNewFeedbackPayload(t *testing.T) {
	res := ClassificationResult{Label: LabelFake, ProbFake: 0.9, ModelVersion: "m"}
	p := NewFeedbackPayload("post", res, LabelReal)
	if p.OurLabel != LabelFake || p.UserLabel != LabelReal || p.Signals == nil || p.Context != nil {
		t.Fatalf("payload = %+v", p)
	}
}
