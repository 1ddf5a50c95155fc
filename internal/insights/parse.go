package insights

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/cam3ron2/github-stats-card/internal/stats"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")

// VisualParams steers the card animation. Colors are #RRGGBB strings.
type VisualParams struct {
	Colors             []string `json:"colors" validate:"min=3,max=5,dive,len=7,hexcolor"`
	AnimationSpeed     string   `json:"animationSpeed" validate:"oneof=slow medium fast"`
	AnimationIntensity string   `json:"animationIntensity" validate:"oneof=calm moderate energetic"`
}

// Response is a validated insights answer. At least one field is non-nil.
type Response struct {
	InsightsText *string       `json:"insightsText"`
	VisualParams *VisualParams `json:"visualParams"`
}

// Parser validates chat-completion content.
type Parser struct {
	validate *validator.Validate
	logger   *zap.Logger
}

// NewParser creates a Parser. A nil logger discards degradation warnings.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Parse turns raw content into a Response. Content that is not a JSON object
// becomes the insights text. Invalid visual parameters are dropped with a
// warning; the call fails only when neither field is usable.
func (p *Parser) Parse(content string) (Response, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Response{}, &stats.MalformedUpstreamResponse{Source: "insights", Reason: "empty message content"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(extractJSON(content)), &fields); err != nil || fields == nil {
		p.logger.Warn("insights content is not a json object, using it as text", zap.Error(err))
		text := content
		return Response{InsightsText: &text}, nil
	}

	var response Response
	if raw, ok := fields["insightsText"]; ok {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil && strings.TrimSpace(text) != "" {
			response.InsightsText = &text
		}
	}

	params, degradation := p.visualParams(fields["visualParams"])
	if degradation != nil {
		p.logger.Warn("insights visual parameters rejected",
			zap.String("field", degradation.Field),
			zap.String("reason", degradation.Reason),
		)
	}
	response.VisualParams = params

	if response.InsightsText == nil && response.VisualParams == nil {
		reason := "response has no insightsText and no valid visualParams"
		if degradation != nil {
			reason += ": " + degradation.Reason
		}
		return Response{}, &stats.MalformedUpstreamResponse{Source: "insights", Reason: reason}
	}
	return response, nil
}

// visualParams validates the optional visualParams field. An absent or null
// field is not a degradation.
func (p *Parser) visualParams(raw json.RawMessage) (*VisualParams, *stats.ValidationDegradation) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var params VisualParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &stats.ValidationDegradation{Field: "visualParams", Reason: err.Error()}
	}
	if err := p.validate.Struct(params); err != nil {
		return nil, &stats.ValidationDegradation{Field: "visualParams", Reason: describeValidation(err)}
	}
	return &params, nil
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		parts = append(parts, fieldErr.Namespace()+" failed "+fieldErr.Tag())
	}
	return strings.Join(parts, "; ")
}

// extractJSON returns the body of a fenced JSON block, or content unchanged.
func extractJSON(content string) string {
	if matches := fencedJSONPattern.FindStringSubmatch(content); len(matches) > 1 {
		return matches[1]
	}
	return content
}
