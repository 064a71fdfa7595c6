package snapshot

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tbourn/go-menu-tracker/internal/normalize"
)

// Parse validates raw and decodes it leniently: numbers may be JSON numbers
// or numeric strings, cuisine_types may be a string or a list, and options
// may be structured or a JSON-encoded string. A product field that is
// present but unusable is recorded in Product.DecodeErrors instead of
// failing the whole snapshot.
func Parse(raw []byte) (*Snapshot, error) {
	if err := ValidateRaw(raw); err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(raw)

	s := &Snapshot{
		Metadata:   decodeMetadata(root.Get("metadata")),
		Source:     decodeSource(root.Get("source")),
		Restaurant: decodeRestaurant(root.Get("restaurant")),
		Categories: []Category{},
		Products:   []Product{},
	}
	root.Get("categories").ForEach(func(_, v gjson.Result) bool {
		if c, ok := decodeCategory(v); ok {
			s.Categories = append(s.Categories, c)
		}
		return true
	})
	i := 0
	root.Get("products").ForEach(func(_, v gjson.Result) bool {
		s.Products = append(s.Products, decodeProduct(i, v))
		i++
		return true
	})
	root.Get("errors").ForEach(func(_, v gjson.Result) bool {
		e := ErrorEntry{
			Type:      v.Get("type").String(),
			Message:   v.Get("message").String(),
			Timestamp: v.Get("timestamp").String(),
		}
		if ctx := v.Get("context"); ctx.IsObject() {
			_ = json.Unmarshal([]byte(ctx.Raw), &e.Context)
		}
		if !v.IsObject() {
			e = ErrorEntry{Type: "extraction", Message: v.String()}
		}
		s.Errors = append(s.Errors, e)
		return true
	})
	return s, nil
}

func decodeMetadata(v gjson.Result) *Metadata {
	m := &Metadata{
		ScraperVersion: v.Get("scraper_version").String(),
		Domain:         v.Get("domain").String(),
		ScrapingMethod: v.Get("scraping_method").String(),
		ScrapedAt:      timeOf(v.Get("scraped_at")),
		ProcessedAt:    timeOf(v.Get("processed_at")),
		ErrorCount:     int(v.Get("error_count").Int()),
		ProductCount:   int(v.Get("product_count").Int()),
		CategoryCount:  int(v.Get("category_count").Int()),
	}
	if f, ok, _ := floatOf(v.Get("processing_duration_seconds")); ok {
		m.ProcessingDurationSeconds = &f
	}
	return m
}

func decodeSource(v gjson.Result) *Source {
	return &Source{
		URL:       strings.TrimSpace(v.Get("url").String()),
		Domain:    strings.TrimSpace(v.Get("domain").String()),
		ScrapedAt: timeOf(v.Get("scraped_at")),
	}
}

func decodeRestaurant(v gjson.Result) *Restaurant {
	r := &Restaurant{
		Name:         normalize.Name(v.Get("name").String()),
		Brand:        normalize.Name(v.Get("brand").String()),
		Address:      strings.TrimSpace(v.Get("address").String()),
		Phone:        strings.TrimSpace(v.Get("phone").String()),
		DeliveryTime: strings.TrimSpace(v.Get("delivery_time").String()),
		Rating:       optFloat(v.Get("rating")),
		DeliveryFee:  optFloat(v.Get("delivery_fee")),
		MinimumOrder: optFloat(v.Get("minimum_order")),
	}
	ct := v.Get("cuisine_types")
	switch {
	case ct.IsArray():
		for _, c := range ct.Array() {
			if s := strings.TrimSpace(c.String()); s != "" {
				r.CuisineTypes = append(r.CuisineTypes, s)
			}
		}
	case ct.Type == gjson.String:
		for _, c := range strings.Split(ct.String(), ",") {
			if s := strings.TrimSpace(c); s != "" {
				r.CuisineTypes = append(r.CuisineTypes, s)
			}
		}
	}
	return r
}

func decodeCategory(v gjson.Result) (Category, bool) {
	if v.Type == gjson.String {
		name := normalize.Name(v.String())
		return Category{Name: name}, name != ""
	}
	c := Category{
		Name:         normalize.Name(v.Get("name").String()),
		Description:  strings.TrimSpace(v.Get("description").String()),
		DisplayOrder: int(v.Get("display_order").Int()),
		Source:       strings.TrimSpace(v.Get("source").String()),
	}
	return c, c.Name != ""
}

func decodeProduct(i int, v gjson.Result) Product {
	p := Product{Index: i}
	if !v.IsObject() {
		p.DecodeErrors = append(p.DecodeErrors, "record is not an object")
		return p
	}

	id := v.Get("id")
	if !id.Exists() {
		id = v.Get("external_id")
	}
	if s := strings.TrimSpace(id.String()); id.Exists() && id.Type != gjson.Null && s != "" {
		p.ExternalID = &s
	}
	p.Name = normalize.Name(v.Get("name").String())
	p.Description = strings.TrimSpace(v.Get("description").String())
	p.Category = normalize.Name(v.Get("category").String())
	p.Currency = strings.ToUpper(strings.TrimSpace(v.Get("currency").String()))
	p.OfferName = normalize.Name(v.Get("offer_name").String())
	p.ImageURL = strings.TrimSpace(v.Get("image_url").String())

	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"price", &p.Price},
		{"original_price", &p.OriginalPrice},
		{"discount_percentage", &p.DiscountPercentage},
	} {
		val, _, err := floatOf(v.Get(f.key))
		if err != nil {
			p.DecodeErrors = append(p.DecodeErrors, fmt.Sprintf("%s: %v", f.key, err))
			continue
		}
		*f.dst = val
	}

	if a := v.Get("availability"); a.Exists() && a.Type != gjson.Null {
		b, err := boolOf(a)
		if err != nil {
			p.DecodeErrors = append(p.DecodeErrors, "availability: "+err.Error())
		} else {
			p.Availability = &b
		}
	}

	if o := v.Get("options"); o.Exists() && o.Type != gjson.Null {
		switch {
		case o.IsObject() || o.IsArray():
			p.Options = json.RawMessage(o.Raw)
		case o.Type == gjson.String && gjson.Valid(o.String()):
			if inner := gjson.Parse(o.String()); inner.IsObject() || inner.IsArray() {
				p.Options = json.RawMessage(inner.Raw)
			}
		}
		if p.Options == nil && o.Type == gjson.String && strings.TrimSpace(o.String()) != "" {
			b, _ := json.Marshal(o.String())
			p.Options = b
		}
	}
	return p
}

// floatOf reads a JSON number or a numeric string. Missing and null values
// are (0, false, nil).
func floatOf(v gjson.Result) (float64, bool, error) {
	switch v.Type {
	case gjson.Null:
		return 0, false, nil
	case gjson.Number:
		return v.Float(), true, nil
	case gjson.String:
		s := strings.TrimSpace(v.String())
		s = strings.Trim(s, "€$£% ")
		s = strings.ReplaceAll(s, ",", ".")
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("not a number: %q", v.String())
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("unexpected %s", v.Type)
	}
}

func optFloat(v gjson.Result) *float64 {
	f, ok, err := floatOf(v)
	if err != nil || !ok || f == 0 {
		return nil
	}
	return &f
}

func boolOf(v gjson.Result) (bool, error) {
	switch v.Type {
	case gjson.True:
		return true, nil
	case gjson.False:
		return false, nil
	case gjson.Number:
		return v.Int() != 0, nil
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(v.String())) {
		case "true", "yes", "1", "available", "in_stock":
			return true, nil
		case "false", "no", "0", "unavailable", "out_of_stock", "sold_out":
			return false, nil
		}
	}
	return false, fmt.Errorf("not a boolean: %q", v.Raw)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// timeOf parses an ISO-8601 timestamp; values without a zone are UTC.
func timeOf(v gjson.Result) *time.Time {
	if v.Type != gjson.String {
		return nil
	}
	s := strings.TrimSpace(v.String())
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
