package garmin

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Consumer identifies the Garmin Connect mobile app to the OAuth1 service
type Consumer struct {
	Key    string `json:"consumer_key"`
	Secret string `json:"consumer_secret"`
}

// oauth1Params holds everything that goes into one signature
type oauth1Params struct {
	consumer  Consumer
	token     *OAuth1Token // nil when requesting the first token
	nonce     string
	timestamp int64
}

// authorizationHeader returns the OAuth1 HMAC-SHA1 Authorization header for
// a request. form holds url-encoded body parameters, if any.
func (p oauth1Params) authorizationHeader(method, rawURL string, form url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}

	oauth := map[string]string{
		"oauth_consumer_key":     p.consumer.Key,
		"oauth_nonce":            p.nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(p.timestamp, 10),
		"oauth_version":          "1.0",
	}
	tokenSecret := ""
	if p.token != nil {
		oauth["oauth_token"] = p.token.Token
		tokenSecret = p.token.Secret
	}

	var pairs []string
	add := func(k, v string) {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(v))
	}
	for k, v := range oauth {
		add(k, v)
	}
	for k, vs := range u.Query() {
		for _, v := range vs {
			add(k, v)
		}
	}
	for k, vs := range form {
		for _, v := range vs {
			add(k, v)
		}
	}
	sort.Strings(pairs)

	baseURL := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + u.EscapedPath()
	base := strings.ToUpper(method) + "&" + percentEncode(baseURL) + "&" + percentEncode(strings.Join(pairs, "&"))
	key := percentEncode(p.consumer.Secret) + "&" + percentEncode(tokenSecret)

	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	oauth["oauth_signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	keys := make([]string, 0, len(oauth))
	for k := range oauth {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, percentEncode(k), percentEncode(oauth[k])))
	}
	return "OAuth " + strings.Join(parts, ", "), nil
}

// percentEncode encodes per RFC 3986: only unreserved characters stay as is
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('A' <= c && c <= 'Z') || ('a' <= c && c <= 'z') || ('0' <= c && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func newNonce() string {
	return rand.Text()
}
