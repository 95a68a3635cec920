package trace

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Standard propagation header names.
const (
	HeaderTraceParent = "traceparent"
	HeaderBaggage     = "baggage"
)

const traceParentVersion = "00"

// HeaderMapping renames the two propagation headers for gateways that do not
// pass the standard names through. Extraction accepts both the mapped and the
// standard names; injection writes only the mapped ones.
type HeaderMapping struct {
	TraceParent string
	Baggage     string
}

// DefaultHeaderMapping uses the standard W3C names.
func DefaultHeaderMapping() HeaderMapping {
	return HeaderMapping{
		TraceParent: HeaderTraceParent,
		Baggage:     HeaderBaggage,
	}
}

// Propagator serializes trace contexts to and from wire headers.
type Propagator struct {
	mapping HeaderMapping
}

// NewPropagator creates a propagator with the given header mapping; empty
// mapping fields fall back to the standard names.
func NewPropagator(mapping HeaderMapping) *Propagator {
	if mapping.TraceParent == "" {
		mapping.TraceParent = HeaderTraceParent
	}
	if mapping.Baggage == "" {
		mapping.Baggage = HeaderBaggage
	}
	return &Propagator{mapping: mapping}
}

// Inject serializes sc into carrier. Invalid contexts write nothing.
func (p *Propagator) Inject(sc SpanContext, carrier map[string]string) {
	if carrier == nil || !sc.IsValid() {
		return
	}
	flags := "00"
	if sc.Sampled() {
		flags = "01"
	}
	carrier[p.mapping.TraceParent] = fmt.Sprintf("%s-%s-%s-%s",
		traceParentVersion, sc.TraceID(), sc.SpanID(), flags)

	if bag := encodeBaggage(sc.Baggage()); bag != "" {
		carrier[p.mapping.Baggage] = bag
	}
}

// Headers returns a fresh carrier holding sc's wire form.
func (p *Propagator) Headers(sc SpanContext) map[string]string {
	carrier := make(map[string]string, 2)
	p.Inject(sc, carrier)
	return carrier
}

// Extract parses carrier into a SpanContext. Missing or malformed headers
// yield the zero (invalid) context, so downstream span creation starts a
// fresh root rather than failing.
func (p *Propagator) Extract(carrier map[string]string) SpanContext {
	if carrier == nil {
		return SpanContext{}
	}

	raw := lookupHeader(carrier, p.mapping.TraceParent, HeaderTraceParent)
	traceID, spanID, sampled, ok := parseTraceParent(raw)
	if !ok {
		return SpanContext{}
	}

	baggage := decodeBaggage(lookupHeader(carrier, p.mapping.Baggage, HeaderBaggage))
	return NewSpanContext(traceID, spanID, sampled, baggage)
}

// lookupHeader tries the mapped name, its standard fallback, and
// case-insensitive matches, in that order.
func lookupHeader(carrier map[string]string, names ...string) string {
	for _, name := range names {
		if v, ok := carrier[name]; ok {
			return v
		}
	}
	for _, name := range names {
		for k, v := range carrier {
			if strings.EqualFold(k, name) {
				return v
			}
		}
	}
	return ""
}

func parseTraceParent(raw string) (TraceID, SpanID, bool, bool) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 4 || parts[0] != traceParentVersion {
		return TraceID{}, SpanID{}, false, false
	}
	traceID, ok := ParseTraceID(parts[1])
	if !ok {
		return TraceID{}, SpanID{}, false, false
	}
	spanID, ok := ParseSpanID(parts[2])
	if !ok {
		return TraceID{}, SpanID{}, false, false
	}
	if len(parts[3]) != 2 {
		return TraceID{}, SpanID{}, false, false
	}
	sampled := parts[3] == "01"
	return traceID, spanID, sampled, true
}

// encodeBaggage renders the map as a key=value list with percent-encoded
// values, keys sorted for deterministic output.
func encodeBaggage(baggage map[string]string) string {
	if len(baggage) == 0 {
		return ""
	}
	keys := make([]string, 0, len(baggage))
	for k := range baggage {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(baggage[k]))
	}
	return strings.Join(parts, ",")
}

// decodeBaggage parses the key=value list, skipping malformed entries.
func decodeBaggage(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	baggage := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		// Properties after ";" are not supported and are dropped.
		if i := strings.IndexByte(entry, ';'); i >= 0 {
			entry = entry[:i]
		}
		key, value, found := strings.Cut(entry, "=")
		if !found || key == "" {
			continue
		}
		k, err := url.QueryUnescape(key)
		if err != nil {
			continue
		}
		v, err := url.QueryUnescape(value)
		if err != nil || v == "" {
			continue
		}
		baggage[k] = v
	}
	if len(baggage) == 0 {
		return nil
	}
	return baggage
}
