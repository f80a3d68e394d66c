package extract

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/factrag/internal/model"
)

// rule matches one entity type. When group > 0 only that submatch is the entity.
type rule struct {
	typ      model.EntityType
	re       *regexp.Regexp
	group    int
	priority int // higher wins on equal-length overlaps
}

type span struct {
	start, end int
	typ        model.EntityType
	priority   int
}

// RuleExtractor is an offline entity extractor built from regular expressions
// and small gazetteers tuned for Indian public-policy claims.
type RuleExtractor struct {
	rules    []rule
	stopOrgs map[string]bool
}

const (
	months     = `(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)`
	number     = `\d{1,3}(?:,\d{2,3})+(?:\.\d+)?|\d+(?:\.\d+)?`
	magnitude  = `(?:crore|lakh|million|billion|trillion|thousand|cr|bn|mn)`
	capWord    = `[A-Z][A-Za-z&'.-]*`
	nameChain  = capWord + `\s(?:(?:` + capWord + `|of|to|and|for|the|on)\s)`
	ordinalsRE = `first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth|\d+(?:st|nd|rd|th)`
)

var gpeGazetteer = []string{
	// countries and blocs
	"India", "Bharat", "China", "Pakistan", "Bangladesh", "Nepal", "Bhutan", "Sri Lanka", "Myanmar",
	"Afghanistan", "Japan", "Russia", "France", "Germany", "Italy", "Brazil", "Canada", "Australia",
	"United States", "USA", "US", "United Kingdom", "UK", "UAE", "Saudi Arabia", "Singapore",
	"Indonesia", "South Africa", "European Union", "EU",
	// states and union territories
	"Andhra Pradesh", "Arunachal Pradesh", "Assam", "Bihar", "Chhattisgarh", "Goa", "Gujarat",
	"Haryana", "Himachal Pradesh", "Jharkhand", "Karnataka", "Kerala", "Madhya Pradesh",
	"Maharashtra", "Manipur", "Meghalaya", "Mizoram", "Nagaland", "Odisha", "Punjab", "Rajasthan",
	"Sikkim", "Tamil Nadu", "Telangana", "Tripura", "Uttar Pradesh", "Uttarakhand", "West Bengal",
	"Delhi", "Jammu and Kashmir", "Ladakh", "Puducherry", "Chandigarh", "Lakshadweep",
	"Andaman and Nicobar Islands",
	// major cities
	"New Delhi", "Mumbai", "Kolkata", "Chennai", "Bengaluru", "Bangalore", "Hyderabad", "Ahmedabad",
	"Pune", "Jaipur", "Lucknow", "Varanasi", "Patna", "Bhopal", "Guwahati", "Srinagar",
	"London", "Washington", "Beijing", "Tokyo", "Geneva",
}

var productGazetteer = []string{
	"Aadhaar", "UPI", "RuPay", "BHIM", "DigiLocker", "CoWIN", "Covaxin", "Covishield",
	"BrahMos", "Tejas", "Vande Bharat", "Mangalyaan", "Aarogya Setu", "FASTag",
}

// NewRuleExtractor creates the default rule set
func NewRuleExtractor() *RuleExtractor {
	rules := []rule{
		// money before cardinal so amounts are not split
		{typ: model.EntityMoney, priority: 9, re: regexp.MustCompile(
			`(?:₹|US\$|\$|€|£)\s?(?:` + number + `)(?:\s?` + magnitude + `\b){0,2}`)},
		{typ: model.EntityMoney, priority: 9, re: regexp.MustCompile(
			`\b(?:Rs\.?|INR|USD)\s?(?:` + number + `)(?:\s?` + magnitude + `\b){0,2}`)},
		{typ: model.EntityMoney, priority: 9, re: regexp.MustCompile(
			`\b(?:` + number + `)\s?(?:` + magnitude + `\s)?(?:rupees|dollars|euros)\b`)},

		{typ: model.EntityPercent, priority: 8, re: regexp.MustCompile(
			`\b(?:` + number + `)\s?(?:%|percent\b|per cent\b)`)},

		{typ: model.EntityDate, priority: 8, re: regexp.MustCompile(
			`\b(?:\d{1,2}(?:st|nd|rd|th)?\s)?` + months + `\.?\s(?:\d{1,2}(?:st|nd|rd|th)?,?\s)?\d{4}\b`)},
		{typ: model.EntityDate, priority: 8, re: regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)},
		{typ: model.EntityDate, priority: 8, re: regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{4}\b`)},
		{typ: model.EntityDate, priority: 8, re: regexp.MustCompile(
			`\b(?:(?:the\s)?(?:` + ordinalsRE + `)\scentury|(?:1[5-9]|20)\d0s|(?:FY|fiscal year\s)\s?\d{4}(?:-\d{2,4})?|\d{4}-\d{2}\b)`)},
		{typ: model.EntityDate, priority: 7, group: 1, re: regexp.MustCompile(
			`\b(?:in|In|since|Since|by|during|from|until|till|before|after|of|year)\s((?:1[5-9]|20)\d{2})\b`)},

		{typ: model.EntityTime, priority: 7, re: regexp.MustCompile(
			`\b\d{1,2}(?::\d{2})?\s?(?:am|pm|a\.m\.|p\.m\.|AM|PM)`)},

		{typ: model.EntityQuantity, priority: 7, re: regexp.MustCompile(
			`\b(?:` + number + `)\s?(?:°C|°F|degrees?(?:\sCelsius|\sFahrenheit)?|km|kilomet(?:re|er)s?|kg|kilograms?|tonnes?|tons?|met(?:re|er)s?|miles?|lit(?:re|er)s?|MW|GW|hectares?|acres?|sq km)\b`)},

		{typ: model.EntityLaw, priority: 6, re: regexp.MustCompile(
			`\b` + nameChain + `{0,7}(?:Act|Bill|Code|Amendment|Ordinance|Rules)(?:,?\s\d{4})?\b`)},
		{typ: model.EntityLaw, priority: 6, re: regexp.MustCompile(
			`\b(?:Article|Section|Schedule)\s\d+[A-Z]?\b`)},

		{typ: model.EntityEvent, priority: 5, re: regexp.MustCompile(
			`\b` + nameChain + `{0,4}(?:Summit|Games|Olympics|War|Festival|Elections?|Conference|Cup|Mission|Yojana|Abhiyan|Scheme)\b`)},
		{typ: model.EntityEvent, priority: 5, re: regexp.MustCompile(
			`\b(?:Lok Sabha|Rajya Sabha|Assembly|General)\s[Ee]lections?\b`)},

		{typ: model.EntityOrg, priority: 5, re: regexp.MustCompile(
			`\b(?:` + capWord + `\s){0,5}(?:Ministry|Bank|Organi[sz]ation|Corporation|Commission|Authority|Council|Institute|University|Limited|Ltd|Inc|Company|Board|Agency|Department|Party|Court|Parliament|Government|Forces|Army|Navy)\b(?:\sof(?:\s` + capWord + `){1,4})?`)},
		{typ: model.EntityOrg, priority: 3, re: regexp.MustCompile(`\b[A-Z]{2,6}\b`)},

		{typ: model.EntityPerson, priority: 6, group: 1, re: regexp.MustCompile(
			`\b(?:Prime Minister|Chief Minister|President|Minister|Governor|Justice|PM|CM|Shri|Smt|Dr|Mr|Mrs|Ms|Gen)\.?\s((?:[A-Z][a-z]+)(?:\s[A-Z][a-z]+){0,2})`)},

		{typ: model.EntityGPE, priority: 4, re: gazetteer(gpeGazetteer)},
		{typ: model.EntityProduct, priority: 4, re: gazetteer(productGazetteer)},
		{typ: model.EntityProduct, priority: 4, re: regexp.MustCompile(`\b[A-Z][a-z]+-\d{1,2}[A-Z]?\b`)},

		{typ: model.EntityOrdinal, priority: 2, re: regexp.MustCompile(`\b(?:` + ordinalsRE + `)\b`)},

		{typ: model.EntityCardinal, priority: 1, re: regexp.MustCompile(
			`\b(?:` + number + `)(?:\s(?:` + magnitude + `|hundred))?\b`)},
	}

	return &RuleExtractor{
		rules: rules,
		stopOrgs: map[string]bool{
			"PM": true, "CM": true, "AM": true, "GDP": true, "CEO": true, "TV": true,
			"OK": true, "FY": true, "II": true, "III": true, "IV": true, "AD": true, "BC": true,
			"INR": true, "USD": true, "KM": true, "MW": true, "GW": true,
		},
	}
}

func gazetteer(names []string) *regexp.Regexp {
	sorted := append([]string(nil), names...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	quoted := make([]string, len(sorted))
	for i, n := range sorted {
		quoted[i] = regexp.QuoteMeta(n)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// ExtractEntities returns entities in text order. Overlapping matches resolve to
// the longest span, then the higher-priority rule.
func (e *RuleExtractor) ExtractEntities(ctx context.Context, text string) ([]model.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var spans []span
	for _, r := range e.rules {
		for _, m := range r.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[0], m[1]
			if r.group > 0 {
				if len(m) <= 2*r.group+1 || m[2*r.group] < 0 {
					continue
				}
				start, end = m[2*r.group], m[2*r.group+1]
			}
			if start == end {
				continue
			}
			if r.typ == model.EntityOrg && e.stopOrgs[text[start:end]] {
				continue
			}
			spans = append(spans, span{start: start, end: end, typ: r.typ, priority: r.priority})
		}
	}

	sort.SliceStable(spans, func(i, j int) bool {
		li, lj := spans[i].end-spans[i].start, spans[j].end-spans[j].start
		if li != lj {
			return li > lj
		}
		if spans[i].priority != spans[j].priority {
			return spans[i].priority > spans[j].priority
		}
		return spans[i].start < spans[j].start
	})

	var accepted []span
	for _, s := range spans {
		if !overlapsAny(s, accepted) {
			accepted = append(accepted, s)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].start < accepted[j].start })

	entities := make([]model.Entity, 0, len(accepted))
	for _, s := range accepted {
		entities = append(entities, model.Entity{
			Type: s.typ,
			Text: strings.TrimRight(text[s.start:s.end], " ,."),
		})
	}
	return entities, nil
}

func overlapsAny(s span, accepted []span) bool {
	for _, a := range accepted {
		if s.start < a.end && a.start < s.end {
			return true
		}
	}
	return false
}
