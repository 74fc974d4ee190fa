package auth

import "strings"

var (
	allStaff        = []UserRole{RoleWaiter, RoleChef, RoleReceptionist}
	waiterOnly      = []UserRole{RoleWaiter}
	chefOnly        = []UserRole{RoleChef}
	receptionOnly   = []UserRole{RoleReceptionist}
	floorStaff      = []UserRole{RoleWaiter, RoleReceptionist}
	managerReserved = []UserRole{}
)

// apiRoleMap lists which roles may call a route. Keys are path prefixes,
// optionally led by a method. The longest matching prefix wins and a
// method-specific key beats a generic one of the same length. Managers are
// allowed everywhere.
var apiRoleMap = map[string][]UserRole{
	"GET /api/tables":          allStaff,
	"POST /api/tables":         managerReserved,
	"DELETE /api/tables":       managerReserved,
	"PUT /api/tables":          floorStaff,
	"GET /api/table-groups":    allStaff,
	"POST /api/table-groups":   waiterOnly,
	"DELETE /api/table-groups": floorStaff,
	"/api/carts":               waiterOnly,
	"GET /api/orders":          floorStaff,
	"GET /api/orders/":         allStaff,
	"POST /api/orders":         waiterOnly,
	"POST /api/orders/":        receptionOnly,
	"/api/kitchen":             chefOnly,
	"/ws/floor":                allStaff,
}

// RolesForAPI returns the roles allowed on path, or nil when the route is
// open to any authenticated staff member.
func RolesForAPI(path string, method string) []UserRole {
	method = strings.ToUpper(strings.TrimSpace(method))

	var bestPath string
	var bestRoles []UserRole
	var bestMethodSpecific bool
	found := false

	for key, roles := range apiRoleMap {
		keyPath := key
		methodSpecific := false
		if strings.Contains(key, " ") {
			parts := strings.SplitN(key, " ", 2)
			keyMethod := strings.ToUpper(strings.TrimSpace(parts[0]))
			keyPath = strings.TrimSpace(parts[1])
			methodSpecific = true
			if method == "" || method != keyMethod {
				continue
			}
		}

		if !strings.HasPrefix(path, keyPath) {
			continue
		}

		if !found || len(keyPath) > len(bestPath) || (len(keyPath) == len(bestPath) && methodSpecific && !bestMethodSpecific) {
			bestPath = keyPath
			bestMethodSpecific = methodSpecific
			bestRoles = roles
			found = true
		}
	}

	if !found {
		return nil
	}
	return bestRoles
}

// Allowed reports whether role may call method on path.
func Allowed(role UserRole, path string, method string) bool {
	if role == RoleManager {
		return true
	}
	roles := RolesForAPI(path, method)
	if roles == nil {
		return role.Valid()
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
