package recipe

// Command is the kind of a step.
type Command string

const (
	CommandLoad           Command = "load"
	CommandStoreAttribute Command = "store_attribute"
	CommandStoreText      Command = "store_text"
	CommandStoreArray     Command = "store_array"
	CommandStoreCount     Command = "store_count"
	CommandRegex          Command = "regex"
	CommandStore          Command = "store"
	CommandAPIRequest     Command = "api_request"
	CommandJSONStoreText  Command = "json_store_text"
	CommandURLEncode      Command = "url_encode"
	CommandStoreURL       Command = "store_url"
	CommandReplace        Command = "replace"
)

// Commands lists every supported command.
var Commands = []Command{
	CommandLoad,
	CommandStoreAttribute,
	CommandStoreText,
	CommandStoreArray,
	CommandStoreCount,
	CommandRegex,
	CommandStore,
	CommandAPIRequest,
	CommandJSONStoreText,
	CommandURLEncode,
	CommandStoreURL,
	CommandReplace,
}

// Known reports whether c is a supported command.
func (c Command) Known() bool {
	for _, known := range Commands {
		if c == known {
			return true
		}
	}
	return false
}

// Accumulates reports whether results of c are appended to a list rather than
// overwriting the output variable.
func (c Command) Accumulates() bool {
	return c == CommandStoreArray
}
