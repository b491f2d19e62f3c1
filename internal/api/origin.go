package api

import (
	"net/http"
	"net/url"

	"lichka/internal/models"
)

// RequireSameOrigin rejects browser requests sent from another site. The
// session cookie rides along on those, so mutating routes must not accept
// them. Requests without Origin or Referer come from non-browser clients
// and pass.
func RequireSameOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Sec-Fetch-Site") == "cross-site" {
			writeJSON(w, http.StatusForbidden, models.APIResponse{Message: "Cross-origin request rejected"})
			return
		}

		source := r.Header.Get("Origin")
		if source == "" {
			source = r.Referer()
		}
		if source != "" {
			u, err := url.Parse(source)
			if err != nil || u.Host != r.Host {
				writeJSON(w, http.StatusForbidden, models.APIResponse{Message: "Cross-origin request rejected"})
				return
			}
		}
		next(w, r)
	}
}
