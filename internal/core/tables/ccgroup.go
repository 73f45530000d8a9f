package tables

import "github.com/JonMunkholm/rulesync/internal/core"

func init() {
	registerCCGroupRules()
}

// CC group rules decide which cohort gets copied on messages sent to an
// audience. The whole text is lower-cased, descriptions included.
func registerCCGroupRules() {
	core.Register(core.Schema{
		Domain: "ccgroup",
		Label:  "CC group rules",
		Table:  "cc_group_rules",
		Fields: []core.Field{
			{Name: "audience_type"},
			{Name: "code"},
			{Name: "role"},
			{Name: "force_send"},
			{Name: "description"},
			{Name: "cc_group_id"},
		},
		Delimiter:     "|",
		MinFields:     6,
		CaseNormalize: true,
	})
}
