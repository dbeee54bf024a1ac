package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/auctionarb/internal/domain"
)

// Alias lists, in resolution order.
var (
	idKeys        = []string{"id", "lotId", "lot_id", "auctionId"}
	titleKeys     = []string{"title", "name", "description"}
	bidKeys       = []string{"currentBid", "current_bid", "highBid", "price"}
	retailKeys    = []string{"retailPrice", "retail_price", "msrp", "originalPrice"}
	conditionKeys = []string{"condition", "itemCondition"}
	codeKeys      = []string{"upc", "barcode", "UPC"}
	imageKeys     = []string{"imageUrl", "image", "primaryImage"}
	closeKeys     = []string{"closesAt", "endTime", "closes_at"}
	locationKeys  = []string{"warehouse", "warehouseLocation", "location"}
)

var conditions = map[string]domain.Condition{
	"new":      domain.ConditionNew,
	"like new": domain.ConditionLikeNew,
	"like_new": domain.ConditionLikeNew,
	"open box": domain.ConditionOpenBox,
	"open_box": domain.ConditionOpenBox,
	"damaged":  domain.ConditionDamaged,
	"salvage":  domain.ConditionDamaged,
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// first returns the first alias whose value is set and non-empty. Zero
// numbers, empty strings and empty collections count as unset so the next
// alias gets a chance.
func first(raw map[string]any, keys []string) any {
	for _, k := range keys {
		v, ok := raw[k]
		if ok && !empty(v) {
			return v
		}
	}
	return nil
}

func empty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case float64:
		return x == 0
	case int:
		return x == 0
	case int64:
		return x == 0
	case json.Number:
		f, err := x.Float64()
		return x == "" || (err == nil && f == 0)
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// text renders scalars as strings. Integral numbers drop the fraction so a
// JSON id of 5 or 5.0 becomes "5" whether or not it was decoded with
// UseNumber.
func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return x.String()
		}
		if f, err := x.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

func optText(v any) *string {
	s := text(v)
	if s == "" {
		return nil
	}
	return &s
}

// ParseMoney accepts a bare number, a currency string such as "$1,200.00",
// or an object carrying an "amount" field. Anything else, NaN and infinities
// included, yields nil.
func ParseMoney(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return nil
		}
		f = n
	case string:
		cleaned := strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(x))
		n, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		f = n
	case map[string]any:
		return ParseMoney(x["amount"])
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// ParseCondition maps a free-form condition onto the closed set.
func ParseCondition(v any) domain.Condition {
	s, ok := v.(string)
	if !ok {
		return domain.ConditionUnknown
	}
	if c, ok := conditions[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c
	}
	return domain.ConditionUnknown
}

// ParseTime parses an ISO-8601 timestamp. A timestamp without a zone is
// taken as UTC.
func ParseTime(v any) *time.Time {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func image(v any) *string {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		v = list[0]
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}
