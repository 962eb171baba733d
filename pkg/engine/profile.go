package engine

import (
	"github.com/Sumatoshi-tech/codefang/pkg/plugin"
	"github.com/Sumatoshi-tech/codefang/pkg/scanner"
)

// deriveProfile builds the immutable Runtime scan profile from the
// logical-or/min-of union of active plugins' declared requirements,
// per SPEC_FULL.md section 3. checkoutRoot is only meaningful when the
// union requires file content.
func deriveProfile(reqs plugin.Requirements, checkoutRoot string) (plugin.ScanProfile, scanner.Profile) {
	checkoutEnabled := reqs.NeedsCurrentContent || reqs.NeedsHistoricalContent

	pp := plugin.ScanProfile{
		CheckoutEnabled:       checkoutEnabled,
		CheckoutCurrentOnly:   reqs.NeedsCurrentContent && !reqs.NeedsHistoricalContent,
		CheckoutHistorical:    reqs.NeedsHistoricalContent,
		EffectiveCheckoutRoot: checkoutRoot,
		MaxFileSize:           reqs.MaxFileSize,
	}

	sp := scanner.Profile{
		CheckoutEnabled:     pp.CheckoutEnabled,
		CheckoutCurrentOnly: pp.CheckoutCurrentOnly,
		CheckoutHistorical:  pp.CheckoutHistorical,
		MaxFileSize:          pp.MaxFileSize,
	}

	return pp, sp
}
