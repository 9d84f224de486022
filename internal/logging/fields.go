package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供路由/命中状态字段，供请求日志复用。
func RequestFields(requestID, route string, status int, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"route":      route,
		"status":     status,
		"cache_hit":  cacheHit,
	}
}
