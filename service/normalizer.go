package service

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/AnTengye/contractledger/model"
)

// Field is one key/value pair of an object whose key order matters.
type Field struct {
	Key   string
	Value any
}

// Fields is an object decoded with its keys in document order.
type Fields []Field

var dateLayouts = []string{"2006-01-02", "02/01/2006"}

var licenseAliases = map[string]model.LicenseType{
	"monthly":   model.LicenseMonthly,
	"annual":    model.LicenseAnnual,
	"annually":  model.LicenseAnnual,
	"yearly":    model.LicenseAnnual,
	"quarterly": model.LicenseQuarterly,
	"other":     model.LicenseOther,
}

var pricingAliases = map[string]model.PricingModel{
	"flatrated":    model.PricingFlatRated,
	"tiered":       model.PricingTiered,
	"prorated":     model.PricingProRated,
	"featurebased": model.PricingFeatureBased,
}

var phoneKeys = []string{"phone", "mobile", "tel", "fax", "cell"}

// Normalizer turns loosely typed extracted fields into validated drafts.
// It performs no I/O.
type Normalizer struct {
	// PhoneRegion is the region assumed for phone numbers written without a country code.
	PhoneRegion string
}

// Normalize validates raw and reconciles its amounts. Stated totals that
// disagree with unit cost times unit count are replaced by the computed value
// and reported in Adjustments.
func (n Normalizer) Normalize(raw map[string]any) (*model.ExtractedContractData, error) {
	out := &model.ExtractedContractData{}
	c := &out.Contract

	var err error
	if c.AppName, err = optString(raw, "app_name"); err != nil {
		return nil, err
	}
	category, err := optString(raw, "category")
	if err != nil {
		return nil, err
	}
	c.Category = matchCategory(category)
	if c.Notes, err = optString(raw, "notes"); err != nil {
		return nil, err
	}
	if c.ContractURL, err = optString(raw, "contract_url"); err != nil {
		return nil, err
	}
	if c.ContactDetails, err = n.contactDetails(raw["contact_details"]); err != nil {
		return nil, err
	}
	if c.RenewalDate, err = ParseDate("renewal_date", raw["renewal_date"]); err != nil {
		return nil, err
	}
	if c.ReviewDate, err = ParseDate("review_date", raw["review_date"]); err != nil {
		return nil, err
	}
	if c.ReviewDate == nil && c.RenewalDate != nil {
		review := subtractMonths(*c.RenewalDate, 2)
		c.ReviewDate = &review
	}

	aggregateField := "overall_total_cost"
	aggregate := raw[aggregateField]
	if aggregate == nil {
		aggregateField = "overall_total_value"
		aggregate = raw[aggregateField]
	}
	if c.OverallTotalValue, err = ParseAmount(aggregateField, aggregate); err != nil {
		return nil, err
	}

	items, err := serviceItems(raw["services"])
	if err != nil {
		return nil, err
	}
	for i, item := range items {
		s, adj, err := normalizeService(i, item)
		if err != nil {
			return nil, err
		}
		out.Services = append(out.Services, s)
		out.Adjustments = append(out.Adjustments, adj...)
	}

	if adj, ok := ReconcileAggregate(c, out.Services); ok {
		out.Adjustments = append(out.Adjustments, adj)
	}
	return out, nil
}

func normalizeService(index int, item map[string]any) (model.ServiceDraft, []model.Adjustment, error) {
	prefix := fmt.Sprintf("services[%d].", index)
	var s model.ServiceDraft

	name, err := optString(item, "name")
	if err != nil {
		return s, nil, prefixed(prefix, err)
	}
	if name == "" {
		return s, nil, &model.ValidationError{Field: prefix + "name", Reason: "required"}
	}
	s.Name = name

	license, err := optString(item, "license_type")
	if err != nil {
		return s, nil, prefixed(prefix, err)
	}
	if s.LicenseType, err = ParseLicenseType(prefix+"license_type", license); err != nil {
		return s, nil, err
	}

	pricing, err := optString(item, "pricing_model")
	if err != nil {
		return s, nil, prefixed(prefix, err)
	}
	if s.PricingModel, err = ParsePricingModel(prefix+"pricing_model", pricing); err != nil {
		return s, nil, err
	}

	costField := "cost_per_user"
	cost := item[costField]
	if cost == nil {
		costField = "cost_per_license"
		cost = item[costField]
	}
	if s.UnitCost, err = ParseAmount(prefix+costField, cost); err != nil {
		return s, nil, err
	}
	if s.UnitCount, err = ParseCount(prefix+"number_of_licenses", item["number_of_licenses"]); err != nil {
		return s, nil, err
	}
	if s.TotalCost, err = ParseAmount(prefix+"total_cost", item["total_cost"]); err != nil {
		return s, nil, err
	}

	var adjustments []model.Adjustment
	if adj, ok := ReconcileService(&s); ok {
		adj.Field = prefix + adj.Field
		adjustments = append(adjustments, adj)
	}
	return s, adjustments, nil
}

// ReconcileService fills or corrects the total cost of s from its unit cost
// and unit count. It reports an adjustment only when a stated total was replaced.
// The unit cost is first rounded to the scale it is stored at.
func ReconcileService(s *model.ServiceDraft) (model.Adjustment, bool) {
	if s.UnitCost == nil {
		return model.Adjustment{}, false
	}
	unit := decimal.NewFromFloat(*s.UnitCost).Round(model.UnitCostScale)
	unitCost := unit.InexactFloat64()
	s.UnitCost = &unitCost
	if s.UnitCount == nil {
		return model.Adjustment{}, false
	}
	product := unit.Mul(decimal.NewFromInt(*s.UnitCount)).Round(model.AmountScale)
	computed := product.InexactFloat64()

	if s.TotalCost == nil {
		s.TotalCost = &computed
		return model.Adjustment{}, false
	}
	if exceedsTolerance(*s.TotalCost, product) {
		adj := model.Adjustment{Field: "total_cost", Stated: *s.TotalCost, Computed: computed}
		s.TotalCost = &computed
		return adj, true
	}
	return model.Adjustment{}, false
}

// ReconcileAggregate sets the contract total to the sum of the service
// totals. Services without a total are skipped; when none has one the
// contract total is left as stated.
func ReconcileAggregate(c *model.ContractDraft, services []model.ServiceDraft) (model.Adjustment, bool) {
	sum := decimal.Zero
	found := false
	for _, s := range services {
		if s.TotalCost != nil {
			sum = sum.Add(decimal.NewFromFloat(*s.TotalCost))
			found = true
		}
	}
	if !found {
		return model.Adjustment{}, false
	}
	sum = sum.Round(model.AmountScale)
	computed := sum.InexactFloat64()

	if c.OverallTotalValue == nil {
		c.OverallTotalValue = &computed
		return model.Adjustment{}, false
	}
	if exceedsTolerance(*c.OverallTotalValue, sum) {
		adj := model.Adjustment{Field: "overall_total_value", Stated: *c.OverallTotalValue, Computed: computed}
		c.OverallTotalValue = &computed
		return adj, true
	}
	return model.Adjustment{}, false
}

func exceedsTolerance(stated float64, computed decimal.Decimal) bool {
	return decimal.NewFromFloat(stated).Sub(computed).Abs().GreaterThan(decimal.NewFromFloat(model.Tolerance))
}

// ParseDate accepts YYYY-MM-DD and DD/MM/YYYY and returns midnight UTC.
// Nil and blank values yield nil.
func ParseDate(field string, v any) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, &model.ValidationError{Field: field, Reason: "expected a date string"}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &t, nil
		}
	}
	return nil, &model.ValidationError{Field: field, Reason: "unrecognized date format"}
}

// ParseLicenseType matches s against the license cadences, ignoring case and punctuation.
func ParseLicenseType(field, s string) (model.LicenseType, error) {
	if strings.TrimSpace(s) == "" {
		return "", &model.ValidationError{Field: field, Reason: "required"}
	}
	if lt, ok := licenseAliases[enumKey(s)]; ok {
		return lt, nil
	}
	return "", &model.ValidationError{Field: field, Reason: fmt.Sprintf("unrecognized license type %q", s)}
}

// ParsePricingModel matches s against the pricing models, ignoring case and punctuation.
func ParsePricingModel(field, s string) (model.PricingModel, error) {
	if strings.TrimSpace(s) == "" {
		return "", &model.ValidationError{Field: field, Reason: "required"}
	}
	if pm, ok := pricingAliases[enumKey(s)]; ok {
		return pm, nil
	}
	return "", &model.ValidationError{Field: field, Reason: fmt.Sprintf("unrecognized pricing model %q", s)}
}

// enumKey lower-cases s and drops everything but letters and digits.
func enumKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func matchCategory(s string) string {
	key := enumKey(s)
	if key == "" {
		return ""
	}
	for _, c := range model.Categories {
		if enumKey(c) == key {
			return c
		}
	}
	return ""
}

// ParseAmount parses a non-negative money amount. Currency symbols,
// thousands separators and whitespace are ignored.
func ParseAmount(field string, v any) (*float64, error) {
	f, ok, err := parseNumber(field, v)
	if err != nil || !ok {
		return nil, err
	}
	if f < 0 {
		return nil, &model.ValidationError{Field: field, Reason: "must be non-negative"}
	}
	return &f, nil
}

// ParseCount parses a non-negative whole number.
func ParseCount(field string, v any) (*int64, error) {
	f, ok, err := parseNumber(field, v)
	if err != nil || !ok {
		return nil, err
	}
	if f < 0 {
		return nil, &model.ValidationError{Field: field, Reason: "must be non-negative"}
	}
	if f != math.Trunc(f) || f > math.MaxInt64 {
		return nil, &model.ValidationError{Field: field, Reason: "must be a whole number"}
	}
	n := int64(f)
	return &n, nil
}

func parseNumber(field string, v any) (float64, bool, error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return x, true, nil
	case int:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false, &model.ValidationError{Field: field, Reason: "not a number"}
		}
		return f, true, nil
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if r == ',' || unicode.IsSpace(r) || unicode.Is(unicode.Sc, r) {
				return -1
			}
			return r
		}, x)
		if cleaned == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false, &model.ValidationError{Field: field, Reason: fmt.Sprintf("not a number: %q", x)}
		}
		return f, true, nil
	default:
		return 0, false, &model.ValidationError{Field: field, Reason: "not a number"}
	}
}

func (n Normalizer) contactDetails(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(x), nil
	case Fields:
		return n.flattenContacts(x), nil
	case map[string]any:
		return n.flattenContacts(sortedFields(x)), nil
	default:
		return "", &model.ValidationError{Field: "contact_details", Reason: "expected text or an object"}
	}
}

// flattenContacts renders one "Key: value" line per leaf value. Keys of
// nested objects are joined with their parent's key, so
// {"sales_rep": {"name": "A"}} becomes "Sales Rep Name: A". Lists of plain
// values are joined with ", ".
func (n Normalizer) flattenContacts(fields Fields) string {
	var lines []string
	n.appendContact(&lines, nil, fields)
	return strings.Join(lines, "\n")
}

func (n Normalizer) appendContact(lines *[]string, keys []string, v any) {
	switch x := v.(type) {
	case nil:
		return
	case Fields:
		for _, f := range x {
			n.appendContact(lines, append(keys[:len(keys):len(keys)], f.Key), f.Value)
		}
	case map[string]any:
		n.appendContact(lines, keys, sortedFields(x))
	case []any:
		if values, ok := plainValues(x); ok {
			n.appendLine(lines, keys, strings.Join(values, ", "))
			return
		}
		for _, item := range x {
			n.appendContact(lines, keys, item)
		}
	default:
		n.appendLine(lines, keys, strings.TrimSpace(fmt.Sprint(x)))
	}
}

func (n Normalizer) appendLine(lines *[]string, keys []string, value string) {
	if value == "" || len(keys) == 0 {
		return
	}
	if isPhoneKey(keys[len(keys)-1]) {
		value = n.formatPhone(value)
	}
	caser := cases.Title(language.English)
	label := strings.NewReplacer("_", " ", "-", " ").Replace(strings.Join(keys, " "))
	*lines = append(*lines, caser.String(strings.Join(strings.Fields(label), " "))+": "+value)
}

// plainValues returns the non-empty items of list as text when none of them
// is an object or a list.
func plainValues(list []any) ([]string, bool) {
	out := make([]string, 0, len(list))
	for _, item := range list {
		switch item.(type) {
		case Fields, map[string]any, []any:
			return nil, false
		case nil:
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
			out = append(out, s)
		}
	}
	return out, true
}

func sortedFields(m map[string]any) Fields {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make(Fields, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, Field{Key: k, Value: m[k]})
	}
	return fields
}

func isPhoneKey(key string) bool {
	k := strings.ToLower(key)
	for _, p := range phoneKeys {
		if strings.Contains(k, p) {
			return true
		}
	}
	return false
}

// formatPhone rewrites value in international notation when it parses as a
// valid number. Anything else is returned unchanged.
func (n Normalizer) formatPhone(value string) string {
	region := n.PhoneRegion
	if region == "" {
		region = "US"
	}
	num, err := libphonenumber.Parse(value, region)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return value
	}
	return libphonenumber.Format(num, libphonenumber.INTERNATIONAL)
}

func optString(m map[string]any, key string) (string, error) {
	switch x := m[key].(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(x), nil
	case json.Number:
		return x.String(), nil
	default:
		return "", &model.ValidationError{Field: key, Reason: "expected a string"}
	}
}

func serviceItems(v any) ([]map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, &model.ValidationError{Field: "services", Reason: "expected a list"}
	}
	items := make([]map[string]any, 0, len(arr))
	for i, el := range arr {
		switch x := el.(type) {
		case map[string]any:
			items = append(items, x)
		case Fields:
			m := make(map[string]any, len(x))
			for _, f := range x {
				m[f.Key] = f.Value
			}
			items = append(items, m)
		default:
			return nil, &model.ValidationError{Field: fmt.Sprintf("services[%d]", i), Reason: "expected an object"}
		}
	}
	return items, nil
}

func prefixed(prefix string, err error) error {
	if ve, ok := err.(*model.ValidationError); ok {
		return &model.ValidationError{Field: prefix + ve.Field, Reason: ve.Reason}
	}
	return err
}

// subtractMonths moves t back by months, clamping the day to the end of the
// target month.
func subtractMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -months, 0)
	lastDay := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}
