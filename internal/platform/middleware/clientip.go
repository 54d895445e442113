// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/taibuivan/gatekeeper/internal/platform/constants"
	"github.com/taibuivan/gatekeeper/internal/platform/ctxutil"
)

// # Client Address

/*
ProxyTrust lists the peers allowed to speak for the client through
X-Forwarded-For and X-Real-IP.

A request whose socket peer is not trusted is attributed to that peer, whatever
headers it carries. Rate budgets and the flood guard key on this address, so a
caller must never be able to choose it.
*/
type ProxyTrust struct {
	prefixes []netip.Prefix
}

// NewProxyTrust builds a [ProxyTrust]. No prefixes means headers are never honoured.
func NewProxyTrust(prefixes []netip.Prefix) *ProxyTrust {
	return &ProxyTrust{prefixes: prefixes}
}

func (trust *ProxyTrust) trusts(addr netip.Addr) bool {
	if trust == nil {
		return false
	}
	for _, prefix := range trust.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

/*
Resolve returns the client address of request.

Flow:
 1. An untrusted socket peer is the client.
 2. Otherwise X-Forwarded-For is walked right to left, skipping trusted hops;
    the first untrusted hop is the client.
 3. Without X-Forwarded-For, a parseable X-Real-IP from the trusted peer is used.
*/
func (trust *ProxyTrust) Resolve(request *http.Request) string {
	peer, ok := peerAddr(request)
	if !ok {
		return peerHost(request)
	}
	if !trust.trusts(peer) {
		return peer.String()
	}

	var hops []string
	for _, value := range request.Header.Values(constants.HeaderXForwardedFor) {
		hops = append(hops, strings.Split(value, ",")...)
	}

	if len(hops) == 0 {
		if realIP, err := netip.ParseAddr(strings.TrimSpace(request.Header.Get(constants.HeaderXRealIP))); err == nil {
			return realIP.Unmap().String()
		}
		return peer.String()
	}

	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		client = hop.Unmap()
		if !trust.trusts(client) {
			break
		}
	}
	return client.String()
}

// ClientIP resolves the client address once and stores it for [RealIP].
//
// Must be registered before any middleware that reads [RealIP].
func ClientIP(trust *ProxyTrust) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			ctx := ctxutil.WithClientIP(request.Context(), trust.Resolve(request))
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RealIP returns the address stored by [ClientIP], or the socket peer when
// the middleware did not run.
func RealIP(request *http.Request) string {
	if ip := ctxutil.GetClientIP(request.Context()); ip != "" {
		return ip
	}
	return peerHost(request)
}

func peerHost(request *http.Request) string {
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return request.RemoteAddr
	}
	return host
}

func peerAddr(request *http.Request) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(peerHost(request))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
