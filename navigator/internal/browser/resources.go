package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// applyResourceBlocking fails requests for the configured resource kinds and
// lets everything else through. The returned router must be stopped when the
// page closes.
func applyResourceBlocking(page *rod.Page, kinds []string) *rod.HijackRouter {
	blocked := blockedTypes(kinds)

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if blocked[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

// blockedTypes maps config names to CDP resource types. Unknown names are
// ignored; config validation rejects them earlier.
func blockedTypes(kinds []string) map[proto.NetworkResourceType]bool {
	out := make(map[proto.NetworkResourceType]bool, len(kinds))
	for _, k := range kinds {
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "images":
			out[proto.NetworkResourceTypeImage] = true
		case "fonts":
			out[proto.NetworkResourceTypeFont] = true
		case "media":
			out[proto.NetworkResourceTypeMedia] = true
		case "stylesheets":
			out[proto.NetworkResourceTypeStylesheet] = true
		}
	}
	return out
}
