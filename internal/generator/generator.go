// Package generator produces realistic mock API events with a nested _doc
// payload, for load testing the ingest paths.
package generator

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/jaswdr/faker"
)

// EventSource is the CloudEvents source of generated events.
const EventSource = "/kafeventlake/eventgen"

// DefaultEventTypes are the event types picked from when none are configured.
var DefaultEventTypes = []string{"user_login", "product_view", "cart_update", "purchase"}

// Generator generates fake events.
type Generator struct {
	faker      faker.Faker
	eventTypes []string
	users      int
	now        func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes the generated sequence reproducible.
func WithSeed(seed int64) Option {
	return func(g *Generator) { g.faker = faker.NewWithSeed(rand.NewSource(seed)) }
}

// WithEventTypes restricts the event types.
func WithEventTypes(types ...string) Option {
	return func(g *Generator) {
		if len(types) > 0 {
			g.eventTypes = types
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		faker:      faker.New(),
		eventTypes: DefaultEventTypes,
		users:      1000,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Event generates one event.
func (g *Generator) Event() map[string]any {
	return map[string]any{
		"event_id":   strconv.Itoa(g.faker.IntBetween(100000, 999999)),
		"event_type": g.pick(g.eventTypes...),
		"user_id":    fmt.Sprintf("user_%d", g.faker.IntBetween(1, g.users)),
		"timestamp":  g.now().UTC().Format(time.RFC3339Nano),
		"metadata": map[string]any{
			"browser": g.pick("chrome", "firefox", "safari", "edge"),
			"os":      g.pick("windows", "macos", "linux", "android", "ios"),
			"device":  g.pick("desktop", "mobile", "tablet"),
		},
		"_doc": map[string]any{
			"session_info": g.sessionInfo(),
			"user_agent":   g.userAgent(),
			"location":     g.location(),
			"engagement":   g.engagement(),
			"performance":  g.performance(),
		},
	}
}

func (g *Generator) sessionInfo() map[string]any {
	return map[string]any{
		"session_id":     fmt.Sprintf("session_%d", g.faker.IntBetween(1000, 9999)),
		"duration":       g.faker.IntBetween(1, 3600),
		"pages_visited":  g.faker.IntBetween(1, 20),
		"entry_page":     g.pick("/home", "/products", "/blog", "/about"),
		"exit_page":      g.pick("/checkout", "/product", "/contact", "/home"),
		"referrer":       g.pick("google", "direct", "social", "email", "other"),
		"is_new_session": g.faker.IntBetween(0, 1) == 1,
	}
}

func (g *Generator) userAgent() map[string]any {
	return map[string]any{
		"browser_version":   g.version(1, 100),
		"platform_version":  g.version(10, 20),
		"device_type":       g.pick("desktop", "mobile", "tablet"),
		"screen_resolution": g.pick("1920x1080", "1366x768", "1440x900", "375x812"),
		"language":          g.pick("en-US", "en-GB", "es-ES", "fr-FR", "de-DE"),
		"timezone":          g.pick("UTC", "EST", "PST", "CET", "GMT"),
	}
}

func (g *Generator) location() map[string]any {
	return map[string]any{
		"country":         g.pick("US", "UK", "CA", "AU", "DE"),
		"region":          g.pick("NA", "EU", "AP", "SA"),
		"city":            g.faker.Address().City(),
		"ip_address":      g.faker.Internet().Ipv4(),
		"isp":             g.pick("Comcast", "Verizon", "AT&T", "BT", "Deutsche Telekom"),
		"connection_type": g.pick("broadband", "mobile", "dial-up"),
	}
}

func (g *Generator) engagement() map[string]any {
	return map[string]any{
		"scroll_depth":     g.faker.IntBetween(0, 100),
		"time_on_page":     g.faker.IntBetween(1, 600),
		"interactions":     g.faker.IntBetween(0, 50),
		"form_submissions": g.faker.IntBetween(0, 3),
		"video_views":      g.faker.IntBetween(0, 5),
		"downloads":        g.faker.IntBetween(0, 2),
	}
}

// performance timings are seconds, except network_latency in milliseconds.
// Values always carry a fractional part so they decode as floats.
func (g *Generator) performance() map[string]any {
	return map[string]any{
		"page_load_time":         g.between(0.5, 5.0),
		"first_contentful_paint": g.between(0.3, 3.0),
		"dom_interactive":        g.between(0.4, 4.0),
		"network_latency":        g.between(10, 500),
	}
}

func (g *Generator) pick(options ...string) string {
	return options[g.faker.IntBetween(0, len(options)-1)]
}

func (g *Generator) version(minMajor, maxMajor int) string {
	return fmt.Sprintf("%d.%d.%d", g.faker.IntBetween(minMajor, maxMajor), g.faker.IntBetween(0, 9), g.faker.IntBetween(0, 9))
}

func (g *Generator) between(lo, hi float64) float64 {
	f := lo + (hi-lo)*float64(g.faker.IntBetween(0, 1_000_000))/1_000_000
	if f == float64(int64(f)) {
		f += 0.001
	}
	return f
}

// CloudEvent wraps a generated event in a CloudEvents envelope whose type
// is the event_type.
func CloudEvent(e map[string]any) (cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetSpecVersion(cloudevents.VersionV1)
	ce.SetID(uuid.New().String())
	ce.SetSource(EventSource)
	if typ, ok := e["event_type"].(string); ok {
		ce.SetType(typ)
	}
	ce.SetTime(time.Now())
	if err := ce.SetData(cloudevents.ApplicationJSON, e); err != nil {
		return ce, fmt.Errorf("failed to set event data: %w", err)
	}
	return ce, nil
}
