package domain

import (
	"fmt"
	"strings"
)

// ComponentType identifies a message template component.
type ComponentType string

const (
	ComponentHeader           ComponentType = "HEADER"
	ComponentBody             ComponentType = "BODY"
	ComponentButton           ComponentType = "BUTTON"
	ComponentCarousel         ComponentType = "CAROUSEL"
	ComponentLimitedTimeOffer ComponentType = "LIMITED_TIME_OFFER"
	ComponentOrderStatus      ComponentType = "ORDER_STATUS"
)

// ParseComponentType normalises case and rejects unknown component types.
func ParseComponentType(s string) (ComponentType, error) {
	t := ComponentType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case ComponentHeader, ComponentBody, ComponentButton, ComponentCarousel,
		ComponentLimitedTimeOffer, ComponentOrderStatus:
		return t, nil
	}
	return "", NewDomainErrorWithCause(ErrCodeValidation, ErrUnsupportedComponent.Message, fmt.Errorf("type %q", s))
}

// ParameterType identifies the value carried by a template parameter.
type ParameterType string

const (
	ParameterText     ParameterType = "text"
	ParameterCurrency ParameterType = "currency"
	ParameterDateTime ParameterType = "date_time"
	ParameterImage    ParameterType = "image"
	ParameterDocument ParameterType = "document"
	ParameterVideo    ParameterType = "video"
	ParameterPayload  ParameterType = "payload"
)

// CurrencyValue is a localisable amount.
type CurrencyValue struct {
	FallbackValue string `json:"fallback_value"`
	Code          string `json:"code"`
	Amount1000    int64  `json:"amount_1000"`
}

// DateTimeValue is a localisable date.
type DateTimeValue struct {
	FallbackValue string `json:"fallback_value"`
}

// MediaValue references uploaded or linked media.
type MediaValue struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// TemplateParameter is one typed parameter. Exactly the field matching Type is set.
type TemplateParameter struct {
	Type     ParameterType  `json:"type"`
	Text     string         `json:"text,omitempty"`
	Payload  string         `json:"payload,omitempty"`
	Currency *CurrencyValue `json:"currency,omitempty"`
	DateTime *DateTimeValue `json:"date_time,omitempty"`
	Image    *MediaValue    `json:"image,omitempty"`
	Document *MediaValue    `json:"document,omitempty"`
	Video    *MediaValue    `json:"video,omitempty"`
}

// Validate checks that the parameter carries the value its type names.
func (p TemplateParameter) Validate() error {
	var ok bool
	switch p.Type {
	case ParameterText:
		ok = p.Text != ""
	case ParameterPayload:
		ok = p.Payload != ""
	case ParameterCurrency:
		ok = p.Currency != nil && p.Currency.Code != ""
	case ParameterDateTime:
		ok = p.DateTime != nil
	case ParameterImage:
		ok = validMedia(p.Image)
	case ParameterDocument:
		ok = validMedia(p.Document)
	case ParameterVideo:
		ok = validMedia(p.Video)
	default:
		return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidParameter.Message, fmt.Errorf("unknown type %q", p.Type))
	}
	if !ok {
		return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidParameter.Message, fmt.Errorf("%s parameter has no value", p.Type))
	}
	return nil
}

func validMedia(m *MediaValue) bool {
	return m != nil && (m.ID != "" || m.Link != "")
}

// CarouselCard is one card of a CAROUSEL component.
type CarouselCard struct {
	CardIndex  int                 `json:"card_index"`
	Components []TemplateComponent `json:"components"`
}

// TemplateComponent is a typed template component descriptor.
type TemplateComponent struct {
	Type       ComponentType       `json:"type"`
	SubType    string              `json:"sub_type,omitempty"`
	Index      *int                `json:"index,omitempty"`
	Parameters []TemplateParameter `json:"parameters,omitempty"`
	Cards      []CarouselCard      `json:"cards,omitempty"`
}

var buttonSubTypes = map[string]bool{
	"quick_reply": true,
	"url":         true,
	"copy_code":   true,
	"flow":        true,
	"catalog":     true,
}

// Validate checks the component and every nested parameter.
func (c TemplateComponent) Validate() error {
	if _, err := ParseComponentType(string(c.Type)); err != nil {
		return err
	}

	switch c.Type {
	case ComponentButton:
		if !buttonSubTypes[c.SubType] {
			return NewDomainError(ErrCodeValidation, fmt.Sprintf("button component has invalid sub_type %q", c.SubType))
		}
		if c.Index == nil || *c.Index < 0 {
			return NewDomainError(ErrCodeValidation, "button component requires a non-negative index")
		}
	case ComponentCarousel:
		if len(c.Cards) == 0 {
			return NewDomainError(ErrCodeValidation, "carousel component requires at least one card")
		}
		for _, card := range c.Cards {
			for _, inner := range card.Components {
				if inner.Type == ComponentCarousel {
					return NewDomainError(ErrCodeValidation, "carousel cards cannot nest carousels")
				}
				if err := inner.Validate(); err != nil {
					return err
				}
			}
		}
	}

	for _, p := range c.Parameters {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateComponents validates components in order and returns the first failure.
func ValidateComponents(components []TemplateComponent) error {
	for i, c := range components {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("component %d: %w", i, err)
		}
	}
	return nil
}

// MergeBodyComponents returns components with every BODY component folded into
// the first one, keeping parameter order. Other components keep their position.
func MergeBodyComponents(components []TemplateComponent) []TemplateComponent {
	out := make([]TemplateComponent, 0, len(components))
	bodyAt := -1
	for _, c := range components {
		if c.Type != ComponentBody {
			out = append(out, c)
			continue
		}
		if bodyAt < 0 {
			merged := c
			merged.Parameters = append([]TemplateParameter(nil), c.Parameters...)
			out = append(out, merged)
			bodyAt = len(out) - 1
			continue
		}
		out[bodyAt].Parameters = append(out[bodyAt].Parameters, c.Parameters...)
	}
	return out
}

// TemplateData is what the messaging client needs to render a template send.
type TemplateData struct {
	Language   string
	Components []TemplateComponent
}

// NormalizeComponentTypes upper-cases component types in place, including
// those nested in carousel cards.
func NormalizeComponentTypes(components []TemplateComponent) {
	for i := range components {
		components[i].Type = ComponentType(strings.ToUpper(strings.TrimSpace(string(components[i].Type))))
		for j := range components[i].Cards {
			NormalizeComponentTypes(components[i].Cards[j].Components)
		}
	}
}
