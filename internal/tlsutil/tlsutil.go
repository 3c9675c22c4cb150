// Package tlsutil constructs the hardened outbound HTTP client shared by the
// LLM transports.
// 仅出站：TLS 1.2+、AEAD 套件；连接池按"单一上游主机、并发补全"调形。
package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// ClientTLSConfig 返回出站连接的 TLS 配置：TLS 1.2 起步，仅 AEAD 套件。
func ClientTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// upstreamTransport 构造面向 LLM 上游的 http.Transport。
// 流量几乎全部打向同一台主机，net/http 默认的 MaxIdleConnsPerHost(2)
// 会让并发补全不断重建 TLS 连接，这里放宽到与准入容量同量级。
func upstreamTransport() *http.Transport {
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: ClientTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     60 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// SecureHTTPClient 返回面向 LLM 上游的出站客户端。
// timeout 是整体兜底；单次调用的真正期限由调用方 context 控制。
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: upstreamTransport(),
	}
}
