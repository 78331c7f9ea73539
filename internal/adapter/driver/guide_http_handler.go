package driver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/alorle/guide-resolver/internal/application"
	"github.com/alorle/guide-resolver/internal/guide"
	"github.com/oapi-codegen/runtime"
)

const maxRequestBody = 1 << 20

// GuideHTTPHandler handles HTTP requests for guide resolution.
type GuideHTTPHandler struct {
	resolver *application.GuideResolver
}

// NewGuideHTTPHandler creates a new HTTP handler for guides.
func NewGuideHTTPHandler(resolver *application.GuideResolver) *GuideHTTPHandler {
	return &GuideHTTPHandler{resolver: resolver}
}

// channelRequest is a local channel in a request body.
type channelRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// resolveCountryRequest is the body of POST /api/guides/{country}.
type resolveCountryRequest struct {
	Channels []channelRequest `json:"channels"`
}

// resolveAllRequest is the body of POST /api/guides.
type resolveAllRequest struct {
	Countries map[string][]channelRequest `json:"countries"`
}

type countryGuidesResponse struct {
	Country string               `json:"country"`
	Guides  []guide.ChannelGuide `json:"guides"`
}

type allGuidesResponse struct {
	Countries map[string][]guide.ChannelGuide `json:"countries"`
}

// ServeHTTP routes the request to the appropriate handler based on method and path.
func (h *GuideHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.EscapedPath(), "/api/guides")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// POST /api/guides - resolve several countries
	if path == "" || path == "/" {
		h.handleResolveAll(w, r)
		return
	}

	// POST /api/guides/{country} - resolve a single country
	raw := strings.TrimPrefix(path, "/")
	if strings.Contains(raw, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var country string
	err := runtime.BindStyledParameterWithOptions("simple", "country", raw, &country, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid country: %v", err))
		return
	}

	country = strings.TrimSpace(country)
	if country == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.handleResolveCountry(w, r, country)
}

func (h *GuideHTTPHandler) handleResolveCountry(w http.ResponseWriter, r *http.Request, country string) {
	var req resolveCountryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	channels, err := toChannels(req.Channels)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	guides := h.resolver.ResolveCountry(r.Context(), country, channels)

	writeJSON(w, http.StatusOK, countryGuidesResponse{Country: country, Guides: guides})
}

func (h *GuideHTTPHandler) handleResolveAll(w http.ResponseWriter, r *http.Request) {
	var req resolveAllRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	byCountry := make(map[string][]guide.Channel, len(req.Countries))
	for country, list := range req.Countries {
		if strings.TrimSpace(country) == "" {
			writeError(w, http.StatusBadRequest, "country cannot be empty")
			return
		}
		channels, err := toChannels(list)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", country, err))
			return
		}
		byCountry[country] = channels
	}

	results := h.resolver.ResolveAll(r.Context(), byCountry)

	writeJSON(w, http.StatusOK, allGuidesResponse{Countries: results})
}

func toChannels(reqs []channelRequest) ([]guide.Channel, error) {
	channels := make([]guide.Channel, 0, len(reqs))
	for i, c := range reqs {
		ch, err := guide.NewChannel(c.ID, c.Name)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		channels = append(channels, ch)
	}
	return channels, nil
}
