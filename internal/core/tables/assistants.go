package tables

import "github.com/JonMunkholm/rulesync/internal/core"

func init() {
	registerModeratorAssistants()
}

func registerModeratorAssistants() {
	core.Register(core.Schema{
		Domain: "assistant",
		Label:  "Moderator assistants",
		Table:  "moderator_assistants",
		Fields: []core.Field{
			{Name: "moderator", Column: "moderator_username"},
			{Name: "assistant", Column: "assistant_username"},
		},
		Delimiter:     ",",
		MinFields:     2,
		CaseNormalize: true,
	})
}
