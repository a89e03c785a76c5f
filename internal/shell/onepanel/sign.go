package onepanel

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Request headers carrying the signature.
const (
	HeaderToken     = "1Panel-Token"
	HeaderTimestamp = "1Panel-Timestamp"
)

// Sign computes the per-request token for a credential and Unix timestamp
// (seconds): hex(md5("1panel" + credential + timestamp)).
//
// Example:
//
//	Sign("secret", 1700000000) // returns "198a204df3db26ddc8cb0c5d03f1a05f"
func Sign(credential string, timestamp int64) string {
	sum := md5.Sum([]byte("1panel" + strings.TrimSpace(credential) + strconv.FormatInt(timestamp, 10)))
	return hex.EncodeToString(sum[:])
}

// NormalizeHost strips an http:// or https:// prefix and a trailing slash.
//
// Example:
//
//	NormalizeHost("https://panel.example.com/") // returns "panel.example.com"
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "https://")
	return strings.TrimSuffix(host, "/")
}

// BaseURL returns the API root for a host and port. The panel API is
// always spoken over plain HTTP.
func BaseURL(host string, port int) string {
	return fmt.Sprintf("http://%s:%d/api/v1", NormalizeHost(host), port)
}
