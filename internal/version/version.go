// Package version carries the SDK identity stamped on every outbound
// request and on exported spans.
package version

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/bytedance/sonic"
)

const (
	// SDKName identifies this SDK in user-agent strings.
	SDKName = "tracekit-go"

	// Version is the SDK release version.
	Version = "0.1.0"

	// Language is the runtime language tag used in span runtime descriptors.
	Language = "go"

	// Scene marks spans produced by direct SDK instrumentation, as opposed to
	// an integration layer.
	Scene = "custom"
)

var (
	userAgent       string
	clientUserAgent string
	once            sync.Once
)

// clientInfo is serialized into the X-Client-User-Agent header so the
// collector can attribute traffic without parsing the plain user-agent.
type clientInfo struct {
	Version     string `json:"version"`
	Lang        string `json:"lang"`
	LangVersion string `json:"lang_version"`
	OSName      string `json:"os_name"`
	OSArch      string `json:"os_arch"`
	Scene       string `json:"scene"`
	Source      string `json:"source"`
}

func build() {
	userAgent = fmt.Sprintf("%s/%s %s/%s %s/%s",
		SDKName, Version, Language, runtime.Version(), runtime.GOOS, runtime.GOARCH)

	info := clientInfo{
		Version:     Version,
		Lang:        Language,
		LangVersion: runtime.Version(),
		OSName:      runtime.GOOS,
		OSArch:      runtime.GOARCH,
		Scene:       "tracekit",
		Source:      "openapi",
	}
	data, err := sonic.Marshal(info)
	if err != nil {
		// Static struct, marshal cannot fail in practice; fall back to plain UA.
		clientUserAgent = userAgent
		return
	}
	clientUserAgent = string(data)
}

// UserAgent returns the plain User-Agent string.
func UserAgent() string {
	once.Do(build)
	return userAgent
}

// ClientUserAgent returns the JSON X-Client-User-Agent string.
func ClientUserAgent() string {
	once.Do(build)
	return clientUserAgent
}
