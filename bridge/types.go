package bridge

import "errors"

// ErrUnsupported is returned by capability-gated calls when the peer did
// not declare the corresponding capability at handshake. It is a normal
// call outcome, never a transport fault; callers implement fallback
// behavior by checking for it.
var ErrUnsupported = errors.New("peer does not support this capability")

// ErrNotReady is returned when an operation that requires a ready session
// is attempted in any other lifecycle state.
var ErrNotReady = errors.New("session is not ready")

// ImplementationInfo identifies a peer. Exchanged once during handshake and
// immutable for the life of the session.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title,omitzero"`
}

// ViewCapabilities advertises the optional surfaces a view exposes back to
// its host. Declared once at handshake; never renegotiated.
type ViewCapabilities struct {
	// Operations, when present, means the view renders operation data; its
	// ListChanged flag means the view reacts to live operation-list changes.
	Operations *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"operations,omitempty"`
	// SizeChanged, when present, means the view reports its preferred
	// rendered size via size-changed notifications.
	SizeChanged *struct{} `json:"sizeChanged,omitempty"`
}

// HostCapabilities advertises the optional features a host grants its view.
// Absence of a capability must degrade the view's behavior, not break it.
type HostCapabilities struct {
	OpenLink     *struct{} `json:"openLink,omitempty"`
	SendMessage  *struct{} `json:"sendMessage,omitempty"`
	Operations   *struct{} `json:"operations,omitempty"`
	Resources    *struct{} `json:"resources,omitempty"`
	Logging      *struct{} `json:"logging,omitempty"`
	ModelContext *struct{} `json:"modelContext,omitempty"`
}

// DisplayMode is the presentation a host renders the view in.
type DisplayMode string

const (
	DisplayModeInline     DisplayMode = "inline"
	DisplayModeFullscreen DisplayMode = "fullscreen"
	DisplayModeOverlay    DisplayMode = "overlay"
)

// Platform classifies the host's runtime environment.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformDesktop Platform = "desktop"
	PlatformMobile  Platform = "mobile"
)

// Theme is the host's color scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// InputCapabilities describes the device input surfaces available to the view.
type InputCapabilities struct {
	Touch    bool `json:"touch"`
	Keyboard bool `json:"keyboard"`
	Pointer  bool `json:"pointer"`
}

// SafeAreaInsets are the host-reserved margins, in CSS pixels.
type SafeAreaInsets struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Viewport describes the container the view renders in: either fixed
// dimensions or a maximum bound, per axis.
type Viewport struct {
	Width     float64 `json:"width,omitzero"`
	Height    float64 `json:"height,omitzero"`
	MaxWidth  float64 `json:"maxWidth,omitzero"`
	MaxHeight float64 `json:"maxHeight,omitzero"`
}

// FontFace declares a font the host makes available to the view.
type FontFace struct {
	Family string `json:"family"`
	Source string `json:"source"`
	Weight string `json:"weight,omitzero"`
	Style  string `json:"style,omitzero"`
}

// Styles is the host's style payload: named variables plus optional fonts.
type Styles struct {
	Variables map[string]string `json:"variables,omitempty"`
	Fonts     []FontFace        `json:"fonts,omitempty"`
}

// HostContext is the mutable snapshot of the environment the view renders
// in. The host owns it; the view caches the most recently delivered
// snapshot merged with field-level patches.
type HostContext struct {
	Theme                 Theme             `json:"theme,omitzero"`
	DisplayMode           DisplayMode       `json:"displayMode,omitzero"`
	AvailableDisplayModes []DisplayMode     `json:"availableDisplayModes,omitempty"`
	Locale                string            `json:"locale,omitzero"`
	Timezone              string            `json:"timezone,omitzero"`
	UserAgent             string            `json:"userAgent,omitzero"`
	Platform              Platform          `json:"platform,omitzero"`
	Input                 InputCapabilities `json:"input,omitzero"`
	SafeArea              SafeAreaInsets    `json:"safeArea,omitzero"`
	Viewport              Viewport          `json:"viewport,omitzero"`
	Styles                Styles            `json:"styles,omitzero"`
}

// HostContextPatch is a field-level update to a HostContext. Nil fields
// leave the cached value untouched; patches never clear unspecified fields.
type HostContextPatch struct {
	Theme                 *Theme             `json:"theme,omitempty"`
	DisplayMode           *DisplayMode       `json:"displayMode,omitempty"`
	AvailableDisplayModes []DisplayMode      `json:"availableDisplayModes,omitempty"`
	Locale                *string            `json:"locale,omitempty"`
	Timezone              *string            `json:"timezone,omitempty"`
	UserAgent             *string            `json:"userAgent,omitempty"`
	Platform              *Platform          `json:"platform,omitempty"`
	Input                 *InputCapabilities `json:"input,omitempty"`
	SafeArea              *SafeAreaInsets    `json:"safeArea,omitempty"`
	Viewport              *Viewport          `json:"viewport,omitempty"`
	Styles                *Styles            `json:"styles,omitempty"`
}

// Apply merges the patch into the context, field by field.
func (c *HostContext) Apply(p *HostContextPatch) {
	if p == nil {
		return
	}
	if p.Theme != nil {
		c.Theme = *p.Theme
	}
	if p.DisplayMode != nil {
		c.DisplayMode = *p.DisplayMode
	}
	if p.AvailableDisplayModes != nil {
		c.AvailableDisplayModes = append([]DisplayMode(nil), p.AvailableDisplayModes...)
	}
	if p.Locale != nil {
		c.Locale = *p.Locale
	}
	if p.Timezone != nil {
		c.Timezone = *p.Timezone
	}
	if p.UserAgent != nil {
		c.UserAgent = *p.UserAgent
	}
	if p.Platform != nil {
		c.Platform = *p.Platform
	}
	if p.Input != nil {
		c.Input = *p.Input
	}
	if p.SafeArea != nil {
		c.SafeArea = *p.SafeArea
	}
	if p.Viewport != nil {
		c.Viewport = *p.Viewport
	}
	if p.Styles != nil {
		c.Styles = cloneStyles(*p.Styles)
	}
}

// Clone returns a deep copy safe to hand out while the original keeps
// receiving patches.
func (c HostContext) Clone() HostContext {
	out := c
	out.AvailableDisplayModes = append([]DisplayMode(nil), c.AvailableDisplayModes...)
	out.Styles = cloneStyles(c.Styles)
	return out
}

func cloneStyles(s Styles) Styles {
	out := Styles{}
	if s.Variables != nil {
		out.Variables = make(map[string]string, len(s.Variables))
		for k, v := range s.Variables {
			out.Variables[k] = v
		}
	}
	out.Fonts = append([]FontFace(nil), s.Fonts...)
	return out
}

// ContentBlock is a typed content part of an operation result or message.
type ContentBlock struct {
	Type string `json:"type"`
	// For text content
	Text string `json:"text,omitzero"`
	// For image/audio content
	Data     string `json:"data,omitzero"`
	MimeType string `json:"mimeType,omitzero"`
	// For resource links
	URI  string `json:"uri,omitzero"`
	Name string `json:"name,omitzero"`
}

// TextContent builds a text content block.
func TextContent(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// ResourceContents is the value of a proxied resource read.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitzero"`
	// Text for textual resources, Blob (base64) for binary ones.
	Text string `json:"text,omitzero"`
	Blob string `json:"blob,omitzero"`
}

// LogLevel is the severity of a view log notification.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)
