// Package classify assigns category labels to free-text notes by keyword
// frequency. It understands Arabic and English.
package classify

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
)

// Category labels.
const (
	Medicine    = "medicine"
	Appointment = "appointment"
	Family      = "family"
	Food        = "food"
	Outing      = "outing"
	Emergency   = "emergency"
	General     = "general"
)

// Labels scoring above this fraction of the top score are reported.
const labelThreshold = 0.3

var keywords = map[string][]string{
	Medicine: {
		"دواء", "دوا", "أخذت", "تناولت", "حبة", "كبسولة", "شراب", "حقنة", "علاج", "طب", "صيدلية", "مرهم", "قطرة",
		"medicine", "medication", "pill", "pills", "tablet", "dose", "syrup", "injection", "pharmacy", "drops",
	},
	Appointment: {
		"موعد", "عيادة", "طبيب", "مستشفى", "فحص", "كشف", "تحليل", "أشعة", "زيارة", "استشارة", "موعدي",
		"appointment", "clinic", "doctor", "hospital", "checkup", "test", "scan", "visit", "consultation",
	},
	Family: {
		"عائلة", "أهل", "أم", "أب", "أخ", "أخت", "ابن", "ابنة", "زوج", "زوجة", "حفيد", "حفيدة", "قريب", "زيارة", "اتصال", "رسالة",
		"family", "mother", "father", "brother", "sister", "son", "daughter", "husband", "wife", "grandson",
		"granddaughter", "visit", "call", "message",
	},
	Food: {
		"طعام", "أكل", "أكلت", "تناولت", "غداء", "عشاء", "إفطار", "وجبة", "طبخ", "طاهي", "مطعم", "مشروب", "شرب", "قهوة", "شاي", "ماء",
		"food", "ate", "eat", "lunch", "dinner", "breakfast", "meal", "cooked", "restaurant", "drink", "coffee", "tea", "water",
	},
	Outing: {
		"خروج", "خرجت", "ذهبت", "سفر", "رحلة", "مشي", "نزهة", "حديقة", "شارع", "سيارة", "مكان", "خارج", "بيت",
		"outing", "went", "trip", "travel", "walk", "park", "street", "car", "outside",
	},
	Emergency: {
		"طوارئ", "خطر", "ألم", "حادثة", "إصابة", "نزيف", "إغماء", "صعوبة", "تنفس", "صرخة", "استغاثة", "مساعدة", "سريع",
		"emergency", "danger", "pain", "accident", "injury", "bleeding", "fainted", "breathing", "help", "urgent",
	},
	General: {
		"ملاحظة", "يوم", "أمس", "غدا", "الآن", "هنا", "هناك", "شعرت", "أحس",
		"note", "today", "yesterday", "tomorrow", "now", "felt", "feel",
	},
}

// Result is the outcome of classifying one text.
type Result struct {
	Labels     []string           `json:"labels"`
	Scores     map[string]float64 `json:"scores"`
	Confidence float64            `json:"confidence"`
}

// Classify scores text against every category. Each score is the keyword
// hit rate per word, scaled so the best category scores 1. Labels are the
// categories above the threshold, best first; General when nothing matched.
func Classify(text string) Result {
	words := Words(text)
	raw := make(map[string]float64, len(keywords))
	var top float64
	for cat, kws := range keywords {
		hits := 0
		for _, w := range words {
			if matches(w, kws) {
				hits++
			}
		}
		if len(words) > 0 {
			raw[cat] = float64(hits) / float64(len(words))
		}
		top = max(top, raw[cat])
	}

	res := Result{Scores: make(map[string]float64, len(keywords))}
	for cat := range keywords {
		if top > 0 {
			res.Scores[cat] = raw[cat] / top
		} else {
			res.Scores[cat] = 0
		}
		if res.Scores[cat] > labelThreshold {
			res.Labels = append(res.Labels, cat)
		}
	}
	slices.SortFunc(res.Labels, func(a, b string) int {
		if c := cmp.Compare(res.Scores[b], res.Scores[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	if len(res.Labels) == 0 {
		res.Labels = []string{General}
	}
	var best float64
	for _, sc := range res.Scores {
		best = max(best, sc)
	}
	res.Confidence = min(1, best*1.5)
	return res
}

// matches reports whether word is one of kws, also trying it without the
// Arabic definite article.
func matches(word string, kws []string) bool {
	if slices.Contains(kws, word) {
		return true
	}
	if bare, ok := strings.CutPrefix(word, "ال"); ok && bare != "" {
		return slices.Contains(kws, bare)
	}
	return false
}

// Words lowercases text and splits it into letter runs. Arabic diacritics
// are dropped.
func Words(text string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.FieldsFunc(b.String(), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Keywords returns up to n of the most frequent words longer than two
// characters, most frequent first. Ties keep first-seen order.
func Keywords(text string, n int) []string {
	if n <= 0 {
		n = 5
	}
	freq := make(map[string]int)
	var order []string
	for _, w := range Words(text) {
		if len([]rune(w)) <= 2 {
			continue
		}
		if freq[w] == 0 {
			order = append(order, w)
		}
		freq[w]++
	}
	slices.SortStableFunc(order, func(a, b string) int { return cmp.Compare(freq[b], freq[a]) })
	if len(order) > n {
		order = order[:n]
	}
	return order
}

// DetectLanguage returns "ar" or "en" by which script has more letters,
// or "mixed" on a tie.
func DetectLanguage(text string) string {
	var arabic, latin int
	for _, r := range text {
		switch {
		case r >= 0x0600 && r <= 0x06FF:
			arabic++
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			latin++
		}
	}
	switch {
	case arabic > latin:
		return "ar"
	case latin > arabic:
		return "en"
	default:
		return "mixed"
	}
}

// Annotate labels text and records how in meta, which is allocated when
// nil. The returned map is meta.
func Annotate(text string, meta map[string]any) ([]string, map[string]any) {
	res := Classify(text)
	if meta == nil {
		meta = make(map[string]any, 4)
	}
	meta["auto_labeled"] = true
	meta["confidence"] = res.Confidence
	meta["language"] = DetectLanguage(text)
	meta["keywords"] = Keywords(text, 5)
	return res.Labels, meta
}
