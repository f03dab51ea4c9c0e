package broker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// HMACAuth holds the credentials for HMAC-authenticated requests against the
// broker REST API.
type HMACAuth struct {
	Key     string // API key
	Secret  string // API secret
	Account string // trading account identifier
}

// Headers returns the HTTP headers for a signed request. The signature is
// HMAC-SHA256(secret, timestamp+method+path+body) encoded as base64.
func (h *HMACAuth) Headers(method, path, body string) map[string]string {
	ts := currentTimestamp()

	message := ts + method + path + body
	sig := hmacSHA256Base64([]byte(h.Secret), message)

	return map[string]string{
		"X-API-KEY":       h.Key,
		"X-API-TIMESTAMP": ts,
		"X-API-ACCOUNT":   h.Account,
		"X-API-SIGNATURE": sig,
	}
}

func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func currentTimestamp() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}
