package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.NetworkTimeout.DurationValue() <= 0 {
		return newFieldError("Global.NetworkTimeout", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	s := c.Site
	if err := validateHost(s.Host); err != nil {
		return fmt.Errorf("%s: %w", siteField("Host"), err)
	}
	if err := validateURL(s.Upstream); err != nil {
		return fmt.Errorf("%s: %w", siteField("Upstream"), err)
	}
	if err := validateURL(s.StylesheetOrigin); err != nil {
		return fmt.Errorf("%s: %w", siteField("StylesheetOrigin"), err)
	}
	if err := validateURL(s.FontOrigin); err != nil {
		return fmt.Errorf("%s: %w", siteField("FontOrigin"), err)
	}

	return nil
}

func validateHost(host string) error {
	if host == "" {
		return errors.New("Host 不能为空")
	}
	if strings.Contains(host, "/") {
		return errors.New("Host 不允许包含路径")
	}
	if strings.Contains(host, " ") {
		return errors.New("Host 不允许包含空格")
	}
	if strings.HasPrefix(host, "http") {
		return errors.New("Host 不应包含协议头")
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("地址缺少 Host: %s", raw)
	}
	return nil
}
