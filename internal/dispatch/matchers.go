package dispatch

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// 站点路径模式。调度规则、兜底处理和组合器共享同一份定义。
var (
	// PartialPathPattern 命中 partial JSON 请求，如 /blog/my-post/index.json。
	PartialPathPattern = regexp.MustCompile(`^/([\w-]+/)*index\.json$`)
	// ContentPathPattern 命中内容页请求（尾斜杠目录或显式 index.html），
	// 捕获组 1 是逻辑内容路径。
	ContentPathPattern = regexp.MustCompile(`^(/(?:[\w-]+/)*)(?:|index\.html)$`)
	// UntrailedPathPattern 命中缺少尾斜杠的站内路径，如 /blog/my-post。
	UntrailedPathPattern = regexp.MustCompile(`^(/[\w-]+)+$`)
)

// Origin 匹配指定外源上的请求（如第三方字体源）。只比较主机：
// 外源配置声明 https，而侦听面以明文承载入站 URL，协议不参与匹配。
func Origin(origin string) Matcher {
	host := strings.TrimSuffix(origin, "/")
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		host = u.Host
	}
	return SameHost(host)
}

// SameHost 匹配宿主站点上的任意请求。
func SameHost(host string) Matcher {
	return func(req *http.Request) bool {
		return isSameHost(req, host)
	}
}

// SameHostPath 匹配宿主站点上路径命中 pattern 的请求。
func SameHostPath(host string, pattern *regexp.Regexp) Matcher {
	return func(req *http.Request) bool {
		return isSameHost(req, host) && pattern.MatchString(req.URL.Path)
	}
}

// PathContains 匹配路径包含指定片段的请求，不限制来源主机。
func PathContains(fragment string) Matcher {
	return func(req *http.Request) bool {
		return strings.Contains(req.URL.Path, fragment)
	}
}

func isSameHost(req *http.Request, host string) bool {
	reqHost := req.URL.Host
	if reqHost == "" {
		reqHost = req.Host
	}
	return strings.EqualFold(reqHost, host)
}
