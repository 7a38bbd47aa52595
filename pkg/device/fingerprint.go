package device

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ServerSideFingerprint is returned when no browser-like environment exists.
const ServerSideFingerprint = "server-side-fingerprint"

const attributeDelimiter = "|"

// Attributes are the observable client properties a fingerprint is derived from.
type Attributes struct {
	UserAgent           string
	ScreenResolution    string
	ColorDepth          string
	Timezone            string
	Language            string
	Platform            string
	HardwareConcurrency int
	DeviceMemory        float64 // GiB, zero when unknown
	TouchSupport        bool
}

// Environment supplies attributes. ok is false when there is no browser-like
// environment to observe.
type Environment interface {
	Attributes() (attrs Attributes, ok bool)
}

// StaticEnvironment is an Environment with fixed attributes.
type StaticEnvironment Attributes

func (e StaticEnvironment) Attributes() (Attributes, bool) {
	return Attributes(e), true
}

// NoEnvironment is an Environment with nothing to observe.
type NoEnvironment struct{}

func (NoEnvironment) Attributes() (Attributes, bool) {
	return Attributes{}, false
}

// Generate derives the fingerprint for env. The attributes are joined in a
// fixed order, hashed with xxhash and rendered in base 36.
func Generate(env Environment) string {
	if env == nil {
		return ServerSideFingerprint
	}
	attrs, ok := env.Attributes()
	if !ok {
		return ServerSideFingerprint
	}
	return strconv.FormatUint(xxhash.Sum64String(attrs.canonical()), 36)
}

func (a Attributes) canonical() string {
	concurrency := ""
	if a.HardwareConcurrency > 0 {
		concurrency = strconv.Itoa(a.HardwareConcurrency)
	}
	memory := ""
	if a.DeviceMemory > 0 {
		memory = strconv.FormatFloat(a.DeviceMemory, 'f', -1, 64)
	}
	return strings.Join([]string{
		a.UserAgent,
		a.ScreenResolution,
		a.ColorDepth,
		a.Timezone,
		a.Language,
		a.Platform,
		concurrency,
		memory,
		strconv.FormatBool(a.TouchSupport),
	}, attributeDelimiter)
}

// ExtractAttributesFromRequest reads the client hint headers a browser
// reports so the server can derive the same fingerprint the client does.
func ExtractAttributesFromRequest(r *http.Request) Attributes {
	concurrency, _ := strconv.Atoi(r.Header.Get("Hardware-Concurrency"))
	memory, _ := strconv.ParseFloat(r.Header.Get("Device-Memory"), 64)
	touch, _ := strconv.ParseBool(r.Header.Get("Touch-Support"))

	return Attributes{
		UserAgent:           r.UserAgent(),
		ScreenResolution:    r.Header.Get("Screen-Resolution"),
		ColorDepth:          r.Header.Get("Color-Depth"),
		Timezone:            r.Header.Get("Timezone"),
		Language:            primaryLanguage(r.Header.Get("Accept-Language")),
		Platform:            strings.Trim(r.Header.Get("Sec-CH-UA-Platform"), `"`),
		HardwareConcurrency: concurrency,
		DeviceMemory:        memory,
		TouchSupport:        touch,
	}
}

// GetRequestFingerprint returns the client-reported X-Device-Fingerprint
// header when present, otherwise derives one from the request headers.
func GetRequestFingerprint(r *http.Request) string {
	if fp := strings.TrimSpace(r.Header.Get("X-Device-Fingerprint")); fp != "" {
		return fp
	}
	return Generate(StaticEnvironment(ExtractAttributesFromRequest(r)))
}

// primaryLanguage returns the first language tag of an Accept-Language value.
func primaryLanguage(acceptLanguage string) string {
	first, _, _ := strings.Cut(acceptLanguage, ",")
	first, _, _ = strings.Cut(first, ";")
	return strings.TrimSpace(first)
}

// determineDeviceName derives a display name from a user agent.
func determineDeviceName(userAgent string) string {
	if userAgent == "" {
		return "Unknown Device"
	}

	browser := ""
	switch {
	case contains(userAgent, "Edg/"):
		browser = "Edge"
	case contains(userAgent, "Firefox/"):
		browser = "Firefox"
	case contains(userAgent, "Chrome/"):
		browser = "Chrome"
	case contains(userAgent, "Safari/"):
		browser = "Safari"
	}

	system := "Unknown Device"
	switch {
	case contains(userAgent, "iPhone"):
		system = "iPhone"
	case contains(userAgent, "iPad"):
		system = "iPad"
	case contains(userAgent, "Android"):
		system = "Android"
	case contains(userAgent, "CrOS"):
		system = "Chromebook"
	case contains(userAgent, "Macintosh"), contains(userAgent, "Mac OS X"):
		system = "Mac"
	case contains(userAgent, "Windows"):
		system = "Windows PC"
	case contains(userAgent, "Linux"):
		system = "Linux"
	}

	if browser == "" {
		return system
	}
	return browser + " on " + system
}

// contains is a case insensitive strings.Contains
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
