package cli

import (
	"net/url"
	"strings"
)

// CallbackParams extracts the parameters of an OAuth redirect. The
// authorization server puts them either in the query (code flow) or in the
// fragment (implicit flow); both are merged, the query taking precedence.
// A bare "a=b&c=d" string is accepted too.
func CallbackParams(raw string) url.Values {
	raw = strings.TrimSpace(raw)
	out := url.Values{}
	if raw == "" {
		return out
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme == "" && u.Host == "" && u.RawQuery == "" && u.Fragment == "") {
		if v, err := url.ParseQuery(strings.TrimLeft(raw, "?#")); err == nil {
			return v
		}
		return out
	}

	if frag, err := url.ParseQuery(u.Fragment); err == nil {
		for k, vs := range frag {
			out[k] = vs
		}
	}
	for k, vs := range u.Query() {
		out[k] = vs
	}
	return out
}
