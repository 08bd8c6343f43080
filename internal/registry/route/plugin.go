package route

import (
	"sort"

	"github.com/gin-gonic/gin"
)

// RouterLoader mounts routes on a gin engine.
type RouterLoader func(r *gin.Engine) error

// RouteType selects the server a plugin's routes are mounted on.
type RouteType int

const (
	// RouteTypeMain registers routes on the public API server.
	RouteTypeMain RouteType = iota
	// RouteTypeManagement registers health and metrics routes. Without a dedicated
	// management port these are mounted on the main server.
	RouteTypeManagement
)

// Plugin is a self-registering route group.
type Plugin struct {
	Order  int
	Type   RouteType
	Loader RouterLoader
}

var plugins []Plugin

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

func loaders(t RouteType) []RouterLoader {
	selected := make([]Plugin, 0, len(plugins))
	for _, p := range plugins {
		if p.Type == t {
			selected = append(selected, p)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].Order < selected[j].Order })
	out := make([]RouterLoader, len(selected))
	for i, p := range selected {
		out[i] = p.Loader
	}
	return out
}

// MainRouteLoaders returns loaders for RouteTypeMain plugins, sorted by order.
func MainRouteLoaders() []RouterLoader { return loaders(RouteTypeMain) }

// ManagementRouteLoaders returns loaders for RouteTypeManagement plugins, sorted by order.
func ManagementRouteLoaders() []RouterLoader { return loaders(RouteTypeManagement) }
