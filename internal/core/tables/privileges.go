package tables

import "github.com/JonMunkholm/rulesync/internal/core"

func init() {
	registerPrivilegeRules()
}

// Privilege rules are stored verbatim: no case normalization, and flag
// fields such as force_send or active are not checked here. The store's
// column constraints are the only validation.
func registerPrivilegeRules() {
	core.Register(core.Schema{
		Domain: "privilege",
		Label:  "Moderation privilege rules",
		Table:  "privilege_rules",
		Fields: []core.Field{
			{Name: "audience_type"},
			{Name: "code"},
			{Name: "role"},
			{Name: "condition", Column: "rule_condition"},
			{Name: "force_send"},
			{Name: "description"},
			{Name: "check_type"},
			{Name: "check_value"},
			{Name: "check_order"},
			{Name: "moderation_required"},
			{Name: "moderation_threshold"},
			{Name: "moderator", Column: "moderator_username"},
			{Name: "moderation_priority"},
			{Name: "active"},
		},
		Delimiter: ",",
		MinFields: 14,
	})
}
