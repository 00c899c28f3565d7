package scanner

// LinkedIn DOM selectors
// These are isolated here because LinkedIn changes their DOM frequently
// Update these when discovery or extraction breaks

// PostHeuristics find post containers. Matches from all of them are merged.
var PostHeuristics = []string{
	`article[role="article"]`,
	`div[data-urn*="urn:li:activity"]`,
	`div.feed-shared-update-v2, div.feed-shared-update-v3`,
}

// InsertionPoints are tried in order inside a post to place the scan bar
var InsertionPoints = []string{
	`[data-test-id*="social-actions"]`, // new UI actions row
	`[data-test-reusable-feed-action]`,
	`[data-urn]`,
}

// ContentBlocks are tried in order inside a post to find the text to classify
var ContentBlocks = []string{
	`[data-test-reusable-feed-message]`,  // new feed message
	`.feed-shared-update-v2__commentary`, // legacy
	`[data-test-id="feed-container"]`,    // alt
}

// Injected UI
const (
	FlagAttr   = "data-lfpd-injected"
	RowAttr    = "data-lfpd-row"
	InjectedUI = ".lfpd-bar,.lfpd-dialog"

	buttonSelector = "button.lfpd-btn"
	chipSelector   = "span.lfpd-chip"
	wrongSelector  = "button.lfpd-wrong"
	dialogSelector = ".lfpd-dialog"
)
