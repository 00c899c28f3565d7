package scanner

import (
	"fmt"
	"math"

	"github.com/ibeckermayer/fauxpost/internal/page"
	"github.com/ibeckermayer/fauxpost/internal/types"
)

const (
	buttonLabel   = "Scan"
	scanningLabel = "Scanning…"
	wrongLabel    = "Wrong?"
)

// ChipText is the verdict label shown for a scored result
func ChipText(r types.ClassificationResult) string {
	conf := int(math.Round(r.Confidence() * 100))
	switch r.Label {
	case types.LabelFake:
		return fmt.Sprintf("Fake • %d%%", conf)
	case types.LabelReal:
		return fmt.Sprintf("Real • %d%%", conf)
	default:
		return "Unknown"
	}
}

func chipFor(r *row) (class, text string) {
	switch r.state {
	case StateScanning:
		return "lfpd-chip lfpd-chip-loading", "…"
	case StateNoText:
		return "lfpd-chip lfpd-chip-warn", "No text"
	case StateError:
		return "lfpd-chip lfpd-chip-error", "Error"
	case StateScored:
		switch r.result.Label {
		case types.LabelFake:
			return "lfpd-chip lfpd-chip-fake", ChipText(r.result)
		case types.LabelReal:
			return "lfpd-chip lfpd-chip-real", ChipText(r.result)
		default:
			return "lfpd-chip lfpd-chip-warn", ChipText(r.result)
		}
	default:
		return "lfpd-chip lfpd-chip-idle", "—"
	}
}

// render writes the row's state into its bar and tells the listeners
func (s *Scanner) render(r *row) {
	if r.state == StateScanning {
		page.SetAttr(r.btn, "disabled", "")
		page.SetText(r.btn, scanningLabel)
	} else {
		page.RemoveAttr(r.btn, "disabled")
		page.SetText(r.btn, buttonLabel)
	}

	class, text := chipFor(r)
	page.SetAttr(r.chip, "class", class)
	page.SetText(r.chip, text)

	if r.state == StateScored {
		page.SetAttr(r.wrong, "style", "display:inline-block")
	} else {
		page.SetAttr(r.wrong, "style", "display:none")
	}

	if len(s.listeners) == 0 {
		return
	}
	v := s.view(r)
	for _, fn := range s.listeners {
		fn(v)
	}
}

func barHTML(id string) string {
	return `<div class="lfpd-bar" ` + RowAttr + `="` + id + `">` +
		`<button class="lfpd-btn">` + buttonLabel + `</button>` +
		`<span class="lfpd-chip lfpd-chip-idle">—</span>` +
		`<button class="lfpd-wrong" style="display:none">` + wrongLabel + `</button>` +
		`</div>`
}

func dialogHTML(id string) string {
	return `<div class="lfpd-dialog" ` + RowAttr + `="` + id + `">` +
		`<div class="lfpd-dialog-card">` +
		`<div class="lfpd-dialog-title">Was this prediction wrong?</div>` +
		`<div class="lfpd-dialog-buttons">` +
		`<button class="lfpd-fb-real">Correct is REAL</button>` +
		`<button class="lfpd-fb-fake">Correct is FAKE</button>` +
		`</div>` +
		`<button class="lfpd-dialog-close">×</button>` +
		`</div></div>`
}
