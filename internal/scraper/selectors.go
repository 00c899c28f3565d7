package scraper

// LinkedIn live-feed selectors
// These are isolated here because LinkedIn changes their DOM frequently
// Update these when mirroring breaks

const (
	// Feed selectors
	FeedContainer = `div.scaffold-finite-scroll__content`
	WaitForFeed   = FeedContainer

	// Login page indicators (for detecting a dead session)
	LoginForm = `form.login__form`

	// MirrorRoot is the element of the local document that holds mirrored posts
	MirrorRoot = `main#fauxpost-feed`

	// liveBadgeClass marks the verdict badge painted onto the live page
	liveBadgeClass = "lfpd-live"
)

// mirrorShell is the local document the mirrored posts are inserted into
const mirrorShell = `<!DOCTYPE html><html><head><title>fauxpost</title></head><body><main id="fauxpost-feed"></main></body></html>`

// keptAttrs survive sanitizing because the scanner's selectors depend on them
var keptAttrs = []string{
	"class",
	"role",
	"hidden",
	"aria-hidden",
	"data-urn",
	"data-id",
	"data-test-id",
	"data-test-reusable-feed-message",
	"data-test-reusable-feed-action",
}
