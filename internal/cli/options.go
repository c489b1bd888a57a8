package cli

// Flow store kinds accepted by --store.
const (
	StoreLoam = "loam"
	StoreFile = "file"
)

// State backends accepted by --state.
const (
	StateMemory = "memory"
	StateFile   = "file"
	StateRedis  = "redis"
)

// EnvStateKey holds a hex-encoded AES-256 key. When set, persisted state is encrypted.
const EnvStateKey = "PARLEY_STATE_KEY"

// ChatOptions contains all the configuration for the chat command.
type ChatOptions struct {
	Dir        string
	Store      string // flow store kind
	Flow       string // default flow; resolved from the directory when empty
	State      string // state backend
	RedisAddr  string
	SessionID  string
	Fresh      bool
	Headless   bool
	Watch      bool
	Debug      bool
	Condition  string // condition timeout, as a Go duration
	NoMarkdown bool
	Mask       []string // state keys (regexps) masked before persisting
}
