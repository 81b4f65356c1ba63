package model

import (
	"slices"
	"strings"
)

type pageAccess struct {
	landing  string
	prefixes []string
}

var rolePages = map[Role]pageAccess{
	RoleAdmin: {
		landing: "/dashboard",
		prefixes: []string{
			"/dashboard", "/manage-users", "/inventory", "/products", "/categories",
			"/sales", "/deliveries", "/track-deliveries", "/profile",
		},
	},
	RoleCashier: {
		landing: "/pos",
		prefixes: []string{
			"/pos", "/inventory", "/products", "/categories", "/sales", "/track-deliveries", "/profile",
		},
	},
	RoleDelivery: {
		landing:  "/deliveries/overview",
		prefixes: []string{"/deliveries", "/profile"},
	},
	RoleUser: {
		landing:  "/welcome",
		prefixes: []string{"/profile", "/welcome"},
	},
}

// LandingPage возвращает страницу, на которую перенаправляется пользователь с этой ролью.
func (r Role) LandingPage() string {
	if access, ok := rolePages[r]; ok {
		return access.landing
	}
	return "/sign-in"
}

// CanVisit проверяет, разрешена ли роли страница по префиксу пути.
func (r Role) CanVisit(path string) bool {
	access, ok := rolePages[r]
	if !ok {
		return false
	}
	for _, prefix := range access.prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// PagePrefixes возвращает все защищённые префиксы страниц без повторов.
func PagePrefixes() []string {
	var res []string
	for _, access := range rolePages {
		for _, prefix := range access.prefixes {
			if !slices.Contains(res, prefix) {
				res = append(res, prefix)
			}
		}
	}
	slices.Sort(res)
	return res
}
