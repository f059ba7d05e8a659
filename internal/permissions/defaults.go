package permissions

// Built-in trust type names.
const (
	TypeAssociate = "associate"
	TypeViewer    = "viewer"
	TypeFriend    = "friend"
	TypePartner   = "partner"
	TypeAdmin     = "admin"
	TypeMCPClient = "mcp_client"
)

// baseExclusions are the property scopes no non-admin relationship may ever
// reach, regardless of overrides.
var baseExclusions = []string{"private/*", "security/*"}

var allOps = []string{
	string(OpRead), string(OpWrite),
	string(OpDelete), string(OpSubscribe),
}

var readSubscribe = []string{string(OpRead), string(OpSubscribe)}

var readWriteSubscribe = []string{
	string(OpRead), string(OpWrite), string(OpSubscribe),
}

// DefaultTrustTypes returns the built-in trust type templates seeded into
// the registry on first start.
func DefaultTrustTypes() []TrustType {
	return []TrustType{
		{
			Name:              TypeAssociate,
			DisplayName:       "Associate",
			Description:       "Minimal footprint, public data only.",
			AllowUserOverride: true,
			OAuthScope:        "actingweb.associate",
			BasePermissions: PermissionSet{
				Properties: CategoryRule{
					Patterns:   []string{"public/*"},
					Operations: readSubscribe,
				},
			},
		},
		{
			Name:              TypeViewer,
			DisplayName:       "Viewer",
			Description:       "Read-only access to shared data.",
			AllowUserOverride: true,
			OAuthScope:        "actingweb.viewer",
			BasePermissions: PermissionSet{
				Properties: CategoryRule{
					Patterns:         []string{"*"},
					Operations:       readSubscribe,
					ExcludedPatterns: baseExclusions,
				},
				Resources: CategoryRule{
					Patterns:   []string{"*"},
					Operations: []string{string(OpRead)},
				},
			},
		},
		{
			Name:              TypeFriend,
			DisplayName:       "Friend",
			Description:       "Read and write shared data, call methods.",
			AllowUserOverride: true,
			OAuthScope:        "actingweb.friend",
			BasePermissions: PermissionSet{
				Properties: CategoryRule{
					Patterns:         []string{"*"},
					Operations:       readWriteSubscribe,
					ExcludedPatterns: baseExclusions,
				},
				Methods: CategoryRule{
					Patterns: []string{"*"},
				},
				Resources: CategoryRule{
					Patterns:   []string{"*"},
					Operations: readSubscribe,
				},
			},
		},
		{
			Name:              TypePartner,
			DisplayName:       "Partner",
			Description:       "Friend plus actions and tools.",
			AllowUserOverride: true,
			OAuthScope:        "actingweb.partner",
			BasePermissions: PermissionSet{
				Properties: CategoryRule{
					Patterns:         []string{"*"},
					Operations:       allOps,
					ExcludedPatterns: baseExclusions,
				},
				Methods: CategoryRule{
					Patterns: []string{"*"},
				},
				Actions: CategoryRule{
					Patterns: []string{"*"},
				},
				Tools: CategoryRule{
					Patterns: []string{"*"},
				},
				Resources: CategoryRule{
					Patterns:   []string{"*"},
					Operations: readSubscribe,
				},
			},
		},
		{
			Name:              TypeAdmin,
			DisplayName:       "Admin",
			Description:       "Full access to every surface.",
			AllowUserOverride: false,
			OAuthScope:        "actingweb.admin",
			BasePermissions: PermissionSet{
				Properties: CategoryRule{
					Patterns:   []string{"*"},
					Operations: allOps,
				},
				Methods:   CategoryRule{Patterns: []string{"*"}},
				Actions:   CategoryRule{Patterns: []string{"*"}},
				Tools:     CategoryRule{Patterns: []string{"*"}},
				Resources: CategoryRule{
					Patterns:   []string{"*"},
					Operations: allOps,
				},
				Prompts: CategoryRule{Patterns: []string{"*"}},
			},
		},
		{
			Name:              TypeMCPClient,
			DisplayName:       "MCP Client",
			Description:       "OAuth2-registered client with tool access.",
			AllowUserOverride: true,
			OAuthScope:        "actingweb.mcp",
			BasePermissions: PermissionSet{
				Properties: CategoryRule{
					Patterns:         []string{"*"},
					Operations:       readWriteSubscribe,
					ExcludedPatterns: baseExclusions,
				},
				Methods: CategoryRule{
					Patterns: []string{"*"},
				},
				Tools: CategoryRule{
					Patterns: []string{"*"},
				},
				Resources: CategoryRule{
					Patterns:   []string{"*"},
					Operations: readSubscribe,
				},
				Prompts: CategoryRule{
					Patterns: []string{"*"},
				},
			},
		},
	}
}
