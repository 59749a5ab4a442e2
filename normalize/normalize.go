package normalize

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"propsyncd/models"
)

// Normalize converts one raw source record into a canonical Property.
// Pure, no I/O. A record without an id is rejected with a ValidationError;
// every other irregular shape degrades to an empty value instead of failing.
func Normalize(raw models.RawRecord) (models.Property, error) {
	id := toString(raw["id"])
	if id == "" {
		return models.Property{}, &models.ValidationError{Field: "id", Message: "missing or empty"}
	}

	p := models.Property{
		ExternalID:  id,
		Title:       Text(toString(raw["title"])),
		Description: HTML(toString(raw["description"])),
		Price:       cleanPrice(toString(raw["price"])),
		Type:        Text(toString(raw["type"])),
		Status:      Text(toString(raw["status"])),
		Attributes:  map[string]string{},
	}

	if p.Title == "" {
		p.Title = "Untitled Property - " + uuid.New().String()[:8]
	}

	p.Location, p.City, p.Area = normalizeLocation(raw["location"])

	if attrs, ok := raw["attributes"].(map[string]any); ok {
		for key, val := range attrs {
			p.Attributes[cleanAttributeKey(key)] = Text(toString(val))
		}
	}

	if features, ok := raw["features"].([]any); ok {
		for _, f := range features {
			if s := Text(toString(f)); s != "" {
				p.Features = append(p.Features, s)
			}
		}
	}

	p.Images = cleanImages(raw["images"])

	return p, nil
}

// cleanPrice strips currency markers, separators, and everything else that
// is not a digit. A symbolic-only price normalizes to "".
func cleanPrice(price string) string {
	var b strings.Builder
	for _, r := range price {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// cleanAttributeKey turns a display label into a stable meta-field name.
func cleanAttributeKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, " ", "_"))
}

// normalizeLocation accepts the two shapes the source emits: a {lat,lng}
// mapping or a "City / Area" string. Anything else becomes "".
func normalizeLocation(loc any) (location, city, area string) {
	switch v := loc.(type) {
	case map[string]any:
		lat, okLat := coordString(v["lat"])
		lng, okLng := coordString(v["lng"])
		if okLat && okLng {
			return lat + "," + lng, "", ""
		}
	case string:
		if strings.TrimSpace(v) == "" {
			return "", "", ""
		}
		parts := strings.Split(v, "/")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		location = strings.Join(parts, ", ")
		if len(parts) >= 2 {
			city, area = parts[0], parts[1]
		}
		return location, city, area
	}
	return "", "", ""
}

func coordString(v any) (string, bool) {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case string:
		if s := strings.TrimSpace(n); s != "" {
			return s, true
		}
	case int:
		return strconv.Itoa(n), true
	}
	return "", false
}

// cleanImages drops empty and unparseable URLs and re-encodes survivors.
// Absent or non-sequence input is an empty list, never an error.
func cleanImages(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}

	var urls []string
	for _, item := range items {
		s := strings.TrimSpace(toString(item))
		if s == "" {
			continue
		}
		u, err := url.Parse(s)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		urls = append(urls, u.String())
	}
	return urls
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}
