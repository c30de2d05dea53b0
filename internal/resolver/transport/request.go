package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ahrav/go-deferred/internal/domain"
)

// Header names set on every resolution request.
const (
	HeaderAuthorization = "Authorization"
	HeaderChannelID     = "X-Channel-ID"
	HeaderRequestID     = "X-Request-ID"
)

// Request is a resolution moving through the handler pipeline.
// Middleware fills in Token and RequestID before the core handler runs.
type Request struct {
	Resolution     *domain.ResolutionRequest
	StateOverrides *domain.StateOverrides
	Token          string
	RequestID      string
}

// Response is a successful resolution.
type Response struct {
	Decision   *domain.Decision
	StatusCode int
	Headers    http.Header
	Latency    time.Duration
}

// payload is the wire body of a resolution request.
type payload struct {
	Platform           string                   `json:"platform"`
	ChannelID          string                   `json:"channel_id"`
	Trigger            *domain.TriggerContext   `json:"trigger,omitempty"`
	TagOverrides       []domain.TagUpdate       `json:"tag_overrides"`
	AttributeOverrides []domain.AttributeUpdate `json:"attribute_overrides"`
	StateOverrides     *domain.StateOverrides   `json:"state_overrides,omitempty"`
}

// EncodeBody serializes the request body for platform.
// Override slices are always present on the wire, empty when none are pending.
func EncodeBody(req *Request, platform string) ([]byte, error) {
	res := req.Resolution
	p := payload{
		Platform:           platform,
		ChannelID:          res.ChannelID(),
		Trigger:            res.TriggerContext(),
		TagOverrides:       res.TagOverrides(),
		AttributeOverrides: res.AttributeOverrides(),
		StateOverrides:     req.StateOverrides,
	}
	if p.TagOverrides == nil {
		p.TagOverrides = []domain.TagUpdate{}
	}
	if p.AttributeOverrides == nil {
		p.AttributeOverrides = []domain.AttributeUpdate{}
	}
	return json.Marshal(p)
}
