package derive

import (
	"net/url"
	"strings"

	pserrors "parcelsync/internal/errors"
)

// DefaultURLTemplate is the assessing deep link. {pnum} and {uid} are
// replaced with the escaped parcel number and the municipality uid.
const DefaultURLTemplate = "https://bsaonline.com/SiteSearch/SiteSearchDetails?SearchCategory=Parcel+Number&ReferenceKey={pnum}&uid={uid}"

// DefaultMunicipalities maps the first pnum segment to a municipality uid.
// Keys are matched verbatim, trailing space included.
func DefaultMunicipalities() map[string]string {
	return map[string]string{
		"J ": "268",
		"70": "385",
		"68": "1655",
		"O ": "1637",
	}
}

// URLBuilder builds the assessing deep link for a parcel number.
type URLBuilder struct {
	template       string
	municipalities map[string]string
}

// NewURLBuilder copies the municipality table. An empty template uses
// DefaultURLTemplate.
func NewURLBuilder(template string, municipalities map[string]string) URLBuilder {
	if template == "" {
		template = DefaultURLTemplate
	}
	m := make(map[string]string, len(municipalities))
	for k, v := range municipalities {
		m[k] = v
	}
	return URLBuilder{template: template, municipalities: m}
}

// Build returns the link for pnum. A prefix missing from the table returns a
// LookupError.
func (b URLBuilder) Build(pnum string) (string, error) {
	prefix, _, _ := strings.Cut(pnum, "-")
	uid, ok := b.municipalities[prefix]
	if !ok {
		return "", pserrors.NewLookupError("", "municipality", prefix)
	}
	r := strings.NewReplacer("{pnum}", url.QueryEscape(strings.TrimSpace(pnum)), "{uid}", uid)
	return r.Replace(b.template), nil
}
