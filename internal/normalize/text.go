package normalize

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	titleFrench = cases.Title(language.French)

	// listingPath matches portal URLs of the form
	// /annonces/achat/appartement/<city-slug>-<dept>/...
	listingPath = regexp.MustCompile(`/annonces/achat/appartement/([^/]+)/`)
	deptSuffix  = regexp.MustCompile(`-\d{2}$`)
)

// Text unescapes HTML entities, applies NFKC (which folds NBSP and thin
// spaces into plain spaces) and collapses runs of whitespace.
func Text(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(html.UnescapeString(s))
	return strings.Join(strings.Fields(s), " ")
}

// CityFromURL derives a city name from a listing URL slug, e.g.
// ".../appartement/la-celle-saint-cloud-78/123" -> "La Celle Saint Cloud".
func CityFromURL(url string) string {
	m := listingPath.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	slug := deptSuffix.ReplaceAllString(m[1], "")
	parts := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' })
	if len(parts) == 0 {
		return ""
	}
	return titleFrench.String(strings.Join(parts, " "))
}
