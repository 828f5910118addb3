package protocol

// ArgumentParser tells the client how to parse and highlight one argument.
type ArgumentParser struct {
	ID string `json:"id"`
	// Registry names the synced registry for resource-key parsers.
	Registry string `json:"registry,omitempty"`
}

var (
	ParserBlockPos = ArgumentParser{ID: "minecraft:block_pos"}
	ParserVec3     = ArgumentParser{ID: "minecraft:vec3"}
)

func ParserResourceKey(registry string) ArgumentParser {
	return ArgumentParser{ID: "minecraft:resource_key", Registry: registry}
}

type SuggestionProvider string

// SuggestAskServer makes the client request suggestions while typing.
const SuggestAskServer SuggestionProvider = "minecraft:ask_server"

type Suggestion struct {
	Text    string `json:"text"`
	Tooltip string `json:"tooltip,omitempty"`
}

type ArgumentHint struct {
	Name        string             `json:"name"`
	Parser      ArgumentParser     `json:"parser"`
	Suggestions SuggestionProvider `json:"suggestions,omitempty"`
}
