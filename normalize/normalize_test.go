package normalize

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"propsyncd/models"
)

func TestNormalize_PriceCleaning(t *testing.T) {
	cases := map[string]string{
		"1.250.000 TL": "1250000",
		"abc":          "",
		"":             "",
		"950,000":      "950000",
		"$ 12 500":     "12500",
	}

	for in, want := range cases {
		p, err := Normalize(models.RawRecord{"id": "1", "title": "x", "price": in})
		if err != nil {
			t.Fatalf("normalize failed for %q: %v", in, err)
		}
		if p.Price != want {
			t.Fatalf("price %q: expected %q, got %q", in, want, p.Price)
		}
	}
}

func TestNormalize_LocationMapping(t *testing.T) {
	p, err := Normalize(models.RawRecord{
		"id": "1", "title": "x",
		"location": map[string]any{"lat": 41.0, "lng": 29.0},
	})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if p.Location != "41,29" {
		t.Fatalf("expected location 41,29, got %q", p.Location)
	}
	if p.City != "" || p.Area != "" {
		t.Fatalf("expected empty city/area for coordinates, got %q/%q", p.City, p.Area)
	}
}

func TestNormalize_LocationString(t *testing.T) {
	p, err := Normalize(models.RawRecord{
		"id": "1", "title": "x",
		"location": "Istanbul / Kadikoy",
	})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if p.Location != "Istanbul, Kadikoy" {
		t.Fatalf("expected Istanbul, Kadikoy, got %q", p.Location)
	}
	if p.City != "Istanbul" {
		t.Fatalf("expected city Istanbul, got %q", p.City)
	}
	if p.Area != "Kadikoy" {
		t.Fatalf("expected area Kadikoy, got %q", p.Area)
	}
}

func TestNormalize_LocationUnrecognized(t *testing.T) {
	p, err := Normalize(models.RawRecord{
		"id": "1", "title": "x",
		"location": []any{"nope"},
	})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if p.Location != "" {
		t.Fatalf("expected empty location, got %q", p.Location)
	}
}

func TestNormalize_AttributeKeys(t *testing.T) {
	p, err := Normalize(models.RawRecord{
		"id": "7", "title": "x",
		"attributes": map[string]any{
			"Lot Size":   "350 m2",
			"Year Built": 1998.0,
		},
	})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if p.Attributes["lot_size"] != "350 m2" {
		t.Fatalf("expected lot_size attribute, got %v", p.Attributes)
	}
	if p.Attributes["year_built"] != "1998" {
		t.Fatalf("expected year_built 1998, got %v", p.Attributes)
	}
}

func TestNormalize_Images(t *testing.T) {
	p, err := Normalize(models.RawRecord{
		"id": "1", "title": "x",
		"images": []any{
			"https://cdn.example.com/a.jpg",
			"",
			"not a url",
			"ftp://cdn.example.com/b.jpg",
			"http://cdn.example.com/path with space.jpg",
		},
	})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(p.Images) != 2 {
		t.Fatalf("expected 2 images, got %d: %v", len(p.Images), p.Images)
	}
	if p.Images[0] != "https://cdn.example.com/a.jpg" {
		t.Fatalf("unexpected first image %q", p.Images[0])
	}
	if strings.Contains(p.Images[1], " ") {
		t.Fatalf("expected escaped URL, got %q", p.Images[1])
	}
}

func TestNormalize_ImagesAbsent(t *testing.T) {
	p, err := Normalize(models.RawRecord{"id": "1", "title": "x"})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(p.Images) != 0 {
		t.Fatalf("expected no images, got %v", p.Images)
	}
}

func TestNormalize_TitlePlaceholder(t *testing.T) {
	p, err := Normalize(models.RawRecord{"id": "1", "title": "  "})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if !strings.HasPrefix(p.Title, "Untitled Property - ") {
		t.Fatalf("expected placeholder title, got %q", p.Title)
	}
	if len(p.Title) == len("Untitled Property - ") {
		t.Fatalf("expected a unique suffix, got %q", p.Title)
	}
}

func TestNormalize_MissingID(t *testing.T) {
	_, err := Normalize(models.RawRecord{"title": "x"})
	if err == nil {
		t.Fatal("expected validation error for missing id")
	}
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestNormalize_NumericID(t *testing.T) {
	p, err := Normalize(models.RawRecord{"id": 42.0, "title": "x"})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if p.ExternalID != "42" {
		t.Fatalf("expected external id 42, got %q", p.ExternalID)
	}
}

func TestNormalize_DescriptionSanitized(t *testing.T) {
	p, err := Normalize(models.RawRecord{
		"id": "1", "title": `<script>alert(1)</script>Villa`,
		"description": `<p>Sea view</p><script>evil()</script><a href="javascript:x()">link</a>`,
	})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if p.Title != "Villa" {
		t.Fatalf("expected plain title, got %q", p.Title)
	}
	if strings.Contains(p.Description, "<script>") || strings.Contains(p.Description, "javascript:") {
		t.Fatalf("active content survived sanitization: %q", p.Description)
	}
	if !strings.Contains(p.Description, "<p>Sea view</p>") {
		t.Fatalf("expected safe markup to survive, got %q", p.Description)
	}
}

func TestNormalize_RawJSONRecord(t *testing.T) {
	var raw models.RawRecord
	payload := `{"id": "L-19", "title": "Flat", "price": "2.100.000 TL",
		"location": "Ankara / Cankaya", "type": "apartment", "status": "for-sale",
		"attributes": {"Room Count": "3+1"}, "features": ["Balcony", ""],
		"images": ["https://img.example.com/1.jpg"]}`
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	p, err := Normalize(raw)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if p.ExternalID != "L-19" || p.Price != "2100000" || p.City != "Ankara" {
		t.Fatalf("unexpected property: %+v", p)
	}
	if len(p.Features) != 1 || p.Features[0] != "Balcony" {
		t.Fatalf("expected single feature Balcony, got %v", p.Features)
	}
	if p.Attributes["room_count"] != "3+1" {
		t.Fatalf("expected room_count 3+1, got %v", p.Attributes)
	}
}
