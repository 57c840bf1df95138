package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources fails requests for the configured resource types. Layout
// is still computed for blocked images, so frames stay meaningful.
func blockResources(page *rod.Page, types []string) {
	block := blockSet(types)
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if block[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

// blockSet maps config names (images, fonts, media, stylesheets) to CDP
// resource types. Unknown names are taken as CDP types.
func blockSet(types []string) map[proto.NetworkResourceType]bool {
	out := make(map[proto.NetworkResourceType]bool, len(types))
	for _, t := range types {
		switch strings.ToLower(t) {
		case "images", "image":
			out[proto.NetworkResourceTypeImage] = true
		case "fonts", "font":
			out[proto.NetworkResourceTypeFont] = true
		case "media":
			out[proto.NetworkResourceTypeMedia] = true
		case "stylesheets", "stylesheet":
			out[proto.NetworkResourceTypeStylesheet] = true
		default:
			out[proto.NetworkResourceType(t)] = true
		}
	}
	return out
}
