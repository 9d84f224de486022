// Package routes 注册 /-/ 命名空间下的诊断与客户端控制接口。
package routes

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/page-hub/page-hub/internal/server"
	"github.com/page-hub/page-hub/internal/version"
)

// RegisterDiagnosticsRoutes 暴露版本与路由表查询接口，供运维巡检。
func RegisterDiagnosticsRoutes(app *fiber.App, ruleNames []string) {
	if app == nil {
		return
	}

	app.Get("/-/version", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"version": version.Version,
			"commit":  version.Commit,
			"arch":    version.Arch,
		})
	})

	app.Get("/-/routes", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"rules": ruleNames,
		})
	})
}

type registerPayload struct {
	URL string `json:"url"`
}

// RegisterClientRoutes 暴露窗口客户端的注册/轮询/注销接口，
// 是激活阶段 claim + navigate 的对外呈现。
func RegisterClientRoutes(app *fiber.App, hub *server.ClientHub) {
	if app == nil || hub == nil {
		return
	}

	app.Post("/-/clients", func(c fiber.Ctx) error {
		var payload registerPayload
		if err := json.Unmarshal(c.Body(), &payload); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		if strings.TrimSpace(payload.URL) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url_required"})
		}

		client := hub.Register(payload.URL)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":  client.ID,
			"url": client.URL,
		})
	})

	app.Get("/-/clients/:id/commands", func(c fiber.Ctx) error {
		commands, ok := hub.Poll(c.Params("id"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "client_not_found"})
		}
		if commands == nil {
			commands = []server.Command{}
		}
		return c.JSON(fiber.Map{
			"commands": commands,
			"claimed":  hub.Claimed(),
		})
	})

	app.Delete("/-/clients/:id", func(c fiber.Ctx) error {
		if !hub.Deregister(c.Params("id")) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "client_not_found"})
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
