package testutil

import "net/http"

// IdentityHeader mirrors the header the identity middleware reads.
const IdentityHeader = "X-Identity-Pubkey"

// WithPubKey makes req act on behalf of pubKey.
func WithPubKey(req *http.Request, pubKey string) *http.Request {
	req.Header.Set(IdentityHeader, pubKey)
	return req
}
